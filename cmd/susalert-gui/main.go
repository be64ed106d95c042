package main

import (
	"embed"
	"log"
	"runtime"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/overlay"
)

//go:embed frontend/*
var assets embed.FS

var (
	mainApp    *application.App
	mainWindow *application.WebviewWindow
	appService *App
)

func main() {
	mgr := config.GetDefaultManager()
	settings, err := mgr.Load()
	if err != nil {
		log.Printf("[WARN] 加载配置失败: %v", err)
	}

	appService = NewApp(mgr, func(name string, data any) {
		if mainApp != nil {
			mainApp.Event.Emit(name, data)
		}
	})

	mainApp = application.New(application.Options{
		Name:        "SusAlert",
		Description: "首领战机制提醒",
		Services: []application.Service{
			application.NewService(appService),
		},
		Assets: application.AssetOptions{
			Handler: application.AssetFileServerFS(assets),
		},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	// 小窗口置顶，放在游戏画面旁边
	mainWindow = mainApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:            "SusAlert",
		Width:            360,
		Height:           300,
		MinWidth:         300,
		MinHeight:        240,
		X:                settings.WindowX,
		Y:                settings.WindowY,
		AlwaysOnTop:      true,
		BackgroundColour: application.NewRGB(40, 42, 54),
		URL:              "/frontend/index.html",
	})

	// 关闭窗口时记住位置并隐藏到托盘
	mainWindow.OnWindowEvent(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		x, y := mainWindow.Position()
		appService.SaveWindowPosition(x, y)
		mainWindow.Hide()
	})

	setupSystemTray(mainApp, mainWindow, appService, settings.Demo)

	if err := mainApp.Run(); err != nil {
		log.Fatal(err)
	}
}

// setupSystemTray 设置系统托盘
func setupSystemTray(app *application.App, window *application.WebviewWindow, svc *App, demoEnabled bool) {
	tray := app.SystemTray.New()

	if runtime.GOOS == "darwin" {
		tray.SetTemplateIcon(renderIcon(22, overlay.LevelNone))
	} else {
		tray.SetIcon(renderIcon(64, overlay.LevelNow))
	}
	tray.SetTooltip("SusAlert - 首领战机制提醒")

	tray.OnClick(func() {
		if window.IsVisible() {
			window.Hide()
		} else {
			window.Show()
			window.Focus()
		}
	})

	trayMenu := app.NewMenu()

	trayMenu.Add("显示窗口").OnClick(func(ctx *application.Context) {
		window.Show()
		window.Focus()
	})

	trayMenu.AddSeparator()

	trayMenu.Add("开始").OnClick(func(ctx *application.Context) { svc.Start() })
	trayMenu.Add("停止").OnClick(func(ctx *application.Context) { svc.Stop() })
	trayMenu.Add("确认清除").OnClick(func(ctx *application.Context) { svc.Cleared() })

	demo := trayMenu.AddCheckbox("演示模式", demoEnabled)
	demo.OnClick(func(ctx *application.Context) {
		svc.SetDemo(demo.Checked())
	})

	trayMenu.AddSeparator()

	trayMenu.Add("退出").OnClick(func(ctx *application.Context) {
		app.Quit()
	})

	tray.SetMenu(trayMenu)
}
