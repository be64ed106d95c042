// Package permissions 检查截屏所需的系统权限
package permissions

import "fmt"

// BundleID macOS 应用标识
const BundleID = "com.susalert.app"

// PermissionStatus 权限状态
type PermissionStatus struct {
	ScreenRecording bool `json:"screen_recording"`
	AllGranted      bool `json:"all_granted"`
}

// GetPermissionInstructions 获取权限说明
func GetPermissionInstructions(status *PermissionStatus) string {
	if status == nil || status.AllGranted {
		return ""
	}

	msg := "需要授权以下权限才能正常工作:\n\n"
	if !status.ScreenRecording {
		msg += "屏幕录制权限 (用于截取计时器区域)\n"
		msg += "   系统设置 > 隐私与安全性 > 屏幕录制\n\n"
	}
	msg += "授权后需要重启应用才能生效。"

	return msg
}

// EnsurePermissions 确保权限已授予
func EnsurePermissions() (bool, string) {
	status := CheckPermissions()
	if status.AllGranted {
		return true, ""
	}

	return false, GetPermissionInstructions(status)
}

// PermissionError 缺少权限
type PermissionError struct {
	Status *PermissionStatus
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("缺少系统权限: 屏幕录制=%v", e.Status.ScreenRecording)
}

// Check 检查权限，缺少时返回 *PermissionError
func Check() error {
	status := CheckPermissions()
	if status.AllGranted {
		return nil
	}
	return &PermissionError{Status: status}
}
