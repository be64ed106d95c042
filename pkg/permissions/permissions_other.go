//go:build !darwin

package permissions

// CheckPermissions 检查所需权限
// 非 macOS 系统截屏不需要特殊权限
func CheckPermissions() *PermissionStatus {
	return &PermissionStatus{
		ScreenRecording: true,
		AllGranted:      true,
	}
}

// OpenScreenRecordingSettings 打开屏幕录制设置页面
func OpenScreenRecordingSettings() {}
