// Package app 按配置组装监控实例及其输出，供命令行和桌面程序共用
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/capture"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/control"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/history"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/offset"
	"github.com/susalert/susalert/pkg/overlay/banner"
	"github.com/susalert/susalert/pkg/overlay/sound"
	"github.com/susalert/susalert/pkg/overlay/ws"
	"github.com/susalert/susalert/pkg/permissions"
	"github.com/susalert/susalert/pkg/process"
	"github.com/susalert/susalert/pkg/rotation"
	"github.com/susalert/susalert/pkg/vision"
	"github.com/susalert/susalert/pkg/vision/cv"
)

// Options 组装选项
type Options struct {
	// Demo 强制开启演示模式
	Demo bool
	// Quiet 不向控制台输出日志（终端仪表盘占用屏幕时）
	Quiet bool
	// Player 覆盖默认的系统提示音
	Player sound.Player
}

// App 组装好的实例
type App struct {
	Manager  *config.Manager
	Settings *config.Settings
	Table    rotation.Table
	Monitor  *monitor.Monitor
	Offset   *offset.Corrector

	opts    Options
	library *cv.Library
	history *history.Store
	log     *logger.Logger

	modesMu sync.Mutex
	modes   AlertModes
}

// errNoTemplates 尚未配置任何模板，首次运行时允许先进入演示模式或标定
var errNoTemplates = errors.New("未配置模板")

// New 读取配置并组装实例
// 配置的模板缺失或无法读取时返回 vision.ErrTemplateMissing；演示模式下只记录警告
func New(mgr *config.Manager, opts Options) (*App, error) {
	settings, err := mgr.Load()
	if err != nil {
		logger.Warn("加载配置失败, 使用默认配置: %v", err)
	}
	if opts.Demo {
		settings.Demo = true
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	root := logger.Default()
	if err := root.Configure(settings.LogLevel, mgr.ResolvePath(settings.LogFile)); err != nil {
		logger.Warn("打开日志文件失败: %v", err)
	}
	if opts.Quiet {
		root.SetConsole(false)
	}

	a := &App{
		Manager:  mgr,
		Settings: settings,
		opts:     opts,
		log:      logger.Named("app"),
	}
	a.modes = AlertModes{Countdown: settings.CountdownAlerts, Now: settings.NowAlerts, Sound: settings.EventSound}

	a.Table, err = LoadTable(mgr, settings)
	if err != nil {
		return nil, err
	}

	cfg := encounter.Config{
		StartTemplate:      settings.StartTemplate,
		EndTemplate:        settings.EndTemplate,
		ConfirmWindow:      settings.ConfirmWindow(),
		PresenceTimeout:    settings.PresenceTimeout(),
		MaxSessionDuration: settings.MaxSession(),
	}
	machine, err := encounter.NewMachine(a.Table, cfg)
	if err != nil {
		return nil, err
	}

	a.Offset = offset.New(settings.TimeOffset(),
		offset.WithLimit(settings.OffsetLimit()),
		offset.WithMaxStep(settings.MaxCorrection()),
		offset.WithStore(mgr),
	)

	sched := alert.NewScheduler(
		alert.WithCountdown(settings.CountdownAlerts),
		alert.WithNow(settings.NowAlerts),
		alert.WithLateLimit(settings.LateLimit()),
	)

	demo := monitor.NewDemoSource(a.Table, settings.StartTemplate, settings.EndTemplate,
		monitor.WithDemoLatency(settings.DemoLatency()),
		monitor.WithDemoAutoClear(settings.DemoAutoClear),
	)

	monOpts := []monitor.Option{
		monitor.WithInterval(settings.PollInterval()),
		monitor.WithDemo(demo, settings.Demo),
		monitor.WithCalibration(a.checkCalibration),
	}
	det, err := a.buildDetector()
	switch {
	case err == nil:
		monOpts = append(monOpts, monitor.WithDetector(det))
	case errors.Is(err, vision.ErrTemplateMissing) && !settings.Demo:
		a.Close()
		return nil, err
	default:
		a.log.Warn("实时检测不可用, 只能使用演示模式: %v", err)
	}
	if settings.ClientProcess != "" {
		monOpts = append(monOpts, monitor.WithClientGate(process.NewClientWatch(settings.ClientProcess, process.DefaultCacheTTL)))
	}

	a.Monitor = monitor.New(machine, a.Offset, sched, monOpts...)
	return a, nil
}

// LoadTable 读取配置指定的轮换表，未指定时使用内置表
func LoadTable(mgr *config.Manager, settings *config.Settings) (rotation.Table, error) {
	if settings.RotationFile == "" {
		t := rotation.Default()
		if settings.LeadMs > 0 {
			t.DefaultLead = settings.Lead()
		}
		return t, nil
	}
	t, err := rotation.LoadFile(mgr.ResolvePath(settings.RotationFile))
	if err != nil {
		return rotation.Table{}, fmt.Errorf("加载轮换表失败: %w", err)
	}
	return t, nil
}

// TemplateSpecs 配置中的模板，加上模板目录中未列出的 png 文件
func TemplateSpecs(mgr *config.Manager, settings *config.Settings) []cv.TemplateSpec {
	seen := make(map[string]bool)
	var specs []cv.TemplateSpec
	for _, t := range settings.Templates {
		specs = append(specs, cv.TemplateSpec{
			ID:        t.ID,
			Path:      mgr.ResolvePath(t.Path),
			Threshold: t.Threshold,
			RGB:       t.RGB,
		})
		seen[t.ID] = true
	}

	if settings.TemplateDir == "" {
		return specs
	}
	files, _ := filepath.Glob(filepath.Join(mgr.ResolvePath(settings.TemplateDir), "*.png"))
	sort.Strings(files)
	for _, f := range files {
		id := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if seen[id] {
			continue
		}
		specs = append(specs, cv.TemplateSpec{ID: id, Path: f})
		seen[id] = true
	}
	return specs
}

func (a *App) buildDetector() (monitor.Detector, error) {
	specs := TemplateSpecs(a.Manager, a.Settings)
	if len(specs) == 0 {
		return nil, errNoTemplates
	}

	var libOpts []cv.LibraryOption
	if r := a.Settings.TimerRegion; r != nil {
		libOpts = append(libOpts, cv.WithFrameSize(r.W, r.H))
	}
	lib, err := cv.LoadLibrary(specs, libOpts...)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(lib.IDs(), a.Settings.StartTemplate) {
		lib.Close()
		return nil, fmt.Errorf("开始模板 %s 未加载: %w", a.Settings.StartTemplate, vision.ErrTemplateMissing)
	}
	a.library = lib
	if a.Settings.TimerRegion == nil {
		return nil, capture.ErrCalibrationInvalid
	}

	src := capture.NewScreenSource(*a.Settings.TimerRegion, capture.WithTimeout(a.Settings.CaptureTimeout()))
	return vision.NewDetector(src, lib), nil
}

func (a *App) checkCalibration() error {
	if err := permissions.Check(); err != nil {
		return err
	}
	if a.Settings.TimerRegion == nil {
		return &capture.CalibrationError{Reason: "尚未标定"}
	}
	if err := a.Settings.TimerRegion.Validate(capture.Displays()); err != nil {
		return err
	}
	if a.library == nil {
		return errors.New("模板未加载")
	}
	return nil
}

// Run 运行监控循环和全部已配置的输出，直到 ctx 结束
// ready 非空时在全部组件启动后调用，用于挂接界面
func (a *App) Run(ctx context.Context, ready func(context.Context) error) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	s := a.Settings

	updates, cancel := a.Monitor.Subscribe()
	defer cancel()
	player := a.opts.Player
	if player == nil {
		player = sound.NewSystemPlayer()
	}
	sink := sound.NewSink(player, func() bool { return a.AlertModes().Sound })
	g.Go(func() error { sink.Run(ctx, updates); return nil })

	if s.OverlayAddr != "" {
		hub := ws.NewHub()
		hubUpdates, cancel := a.Monitor.Subscribe()
		defer cancel()
		g.Go(func() error { hub.Run(ctx); return nil })
		g.Go(func() error { ws.Pump(ctx, hub, hubUpdates); return nil })
		g.Go(func() error { return ws.NewServer(hub).ListenAndServe(ctx, s.OverlayAddr) })
	}

	if s.BannerPath != "" {
		r, err := banner.NewRenderer(nil, banner.DefaultWidth, banner.DefaultHeight)
		if err != nil {
			return err
		}
		bannerUpdates, cancel := a.Monitor.Subscribe()
		defer cancel()
		bs := banner.NewSink(r, a.Manager.ResolvePath(s.BannerPath))
		g.Go(func() error { bs.Run(ctx, bannerUpdates); return nil })
	}

	if s.HistoryPath != "" {
		store, err := history.Open(ctx, a.Manager.ResolvePath(s.HistoryPath))
		if err != nil {
			return err
		}
		a.history = store
		histUpdates, cancel := a.Monitor.Subscribe()
		defer cancel()
		rec := history.NewRecorder(store).WithDemoSource(func() bool { return a.Monitor.Snapshot().Demo })
		g.Go(func() error { rec.Run(ctx, histUpdates); return nil })
	}

	if s.ControlAddr != "" {
		srv := control.NewServer(a.Monitor)
		g.Go(func() error { return srv.ListenAndServe(ctx, s.ControlAddr) })
	}

	if ready != nil {
		// 界面退出即整体退出
		g.Go(func() error {
			defer stop()
			return ready(ctx)
		})
	}

	g.Go(func() error { return a.Monitor.Run(ctx) })

	if s.Demo {
		a.log.Info("演示模式")
	}
	if err := a.Monitor.Start(); err != nil {
		a.log.Warn("监控未启动: %v", err)
	}

	return g.Wait()
}

// AlertModes 当前的提醒开关
type AlertModes struct {
	Countdown bool `json:"countdown"`
	Now       bool `json:"now"`
	Sound     bool `json:"sound"`
}

// AlertModes 返回当前的提醒开关
func (a *App) AlertModes() AlertModes {
	a.modesMu.Lock()
	defer a.modesMu.Unlock()
	return a.modes
}

// SetAlertModes 立即切换提醒开关并写入配置
func (a *App) SetAlertModes(m AlertModes) error {
	if err := a.Monitor.SetAlerts(m.Countdown, m.Now); err != nil {
		return err
	}
	a.modesMu.Lock()
	a.modes = m
	a.modesMu.Unlock()
	if err := a.Manager.SaveAlertModes(m.Countdown, m.Now, m.Sound); err != nil {
		return fmt.Errorf("保存提醒开关失败: %w", err)
	}
	return nil
}

// Close 释放模板和数据库
func (a *App) Close() error {
	var errs []error
	if a.library != nil {
		a.library.Close()
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	return errors.Join(errs...)
}

// HistoryPath 历史库的绝对路径，未配置时为空
func (a *App) HistoryPath() string {
	return a.Manager.ResolvePath(a.Settings.HistoryPath)
}
