// Package keystone composes the runtime's managers, the script context, and
// the script-visible bindings into one embeddable unit: an Environment. It
// is the only package an embedding application needs to import directly.
package keystone

import (
	"fmt"
	"path"
	"strings"

	"github.com/fsnotify/fsnotify"
	lua "github.com/yuin/gopher-lua"

	"github.com/rs/zerolog"

	"github.com/keystone-engine/keystone/internal/asset"
	"github.com/keystone-engine/keystone/internal/ecs"
	"github.com/keystone-engine/keystone/internal/errstack"
	"github.com/keystone-engine/keystone/internal/event"
	"github.com/keystone-engine/keystone/internal/job"
	"github.com/keystone-engine/keystone/internal/memory"
	"github.com/keystone-engine/keystone/internal/preprocess"
	"github.com/keystone-engine/keystone/internal/profiler"
	"github.com/keystone-engine/keystone/internal/reflectinfo"
	"github.com/keystone-engine/keystone/internal/script"
	"github.com/keystone-engine/keystone/internal/state"
	"github.com/keystone-engine/keystone/internal/timer"
	"github.com/keystone-engine/keystone/internal/vfs"
	"github.com/keystone-engine/keystone/keystone/bindings"
)

const (
	errorOwnerKeystone = "keystone"
	errorSourceScript  = "script"
	errorSourceModule  = "module"
)

// Environment owns every runtime manager plus one script context, wires the
// bindings package over them, and drives the frame loop's housekeeping
// (clock, timers, assets, hot reload) from a single Update call.
type Environment struct {
	cfg EngineConfig
	log zerolog.Logger

	VFS     *vfs.VFS
	Memory  *memory.Manager
	Errors  *errstack.Stack
	Jobs    *job.Manager
	Events  *event.Manager
	State   *state.Manager
	Timers  *timer.Manager
	Assets  *asset.Manager
	World   *ecs.World
	Script  *script.Context
	Reflect *reflectinfo.Registry

	preprocessor *preprocess.Preprocessor
	watcher      *vfs.FileWatcher

	profSession  *profiler.Session
	profCounters *profiler.Counters

	fsWatch   *fsnotify.Watcher
	fsHit     chan struct{}
	entryPath string
}

// New builds an Environment from cfg, backed by fsys for all virtual
// filesystem I/O. It mounts "assets://" and "scripts://" against
// cfg.AssetRoot/cfg.ScriptRoot, constructs every manager, installs the
// script bindings, and (if cfg.HotReload is set) starts the fsnotify
// fast-path notifier alongside the explicitly-polled watcher.
func New(cfg EngineConfig, fsys vfs.FileSystem, log zerolog.Logger) (*Environment, error) {
	v := vfs.New(fsys)
	if err := v.Mount("assets", cfg.AssetRoot, true); err != nil {
		return nil, err
	}
	if err := v.Mount("scripts", cfg.ScriptRoot, true); err != nil {
		return nil, err
	}

	registry := reflectinfo.NewRegistry()

	env := &Environment{
		cfg:          cfg,
		log:          log,
		VFS:          v,
		Memory:       memory.NewManager(uintptr(cfg.FrameArenaSize)),
		Errors:       errstack.NewStack(),
		Jobs:         job.NewManager(),
		Events:       event.NewManager(),
		State:        state.NewManager(),
		Timers:       timer.NewManager(),
		Assets:       asset.NewManager(fsys),
		World:        ecs.NewWorld(registry),
		Script:       script.NewContext(registry),
		Reflect:      registry,
		preprocessor: preprocess.New(),
		watcher:      vfs.NewFileWatcher(fsys),
		profSession:  profiler.NewSession(log),
		profCounters: profiler.NewCounters(256),
		fsHit:        make(chan struct{}, 1),
	}

	env.Jobs.AttachProfiler(env.profSession, env.profCounters)
	env.World.AttachProfiler(env.profSession, env.profCounters)
	env.Script.Preprocess = env.preprocessor.AsScriptHook()
	env.Script.VM().OpenLibs()

	env.installBindings()
	env.installModuleSearcher()

	if cfg.HotReload {
		if err := env.startFastWatch(); err != nil {
			log.Warn().Err(err).Msg("keystone: fsnotify fast-path unavailable, falling back to polling only")
		}
	}

	resolved, err := v.Resolve(cfg.EntryScript)
	if err != nil {
		return nil, fmt.Errorf("keystone: resolve entry script: %w", err)
	}
	env.entryPath = resolved

	if err := env.loadEntry(); err != nil {
		return nil, err
	}

	return env, nil
}

func (env *Environment) installBindings() {
	bindings.RegisterState(env.Script, env.State)
	bindings.RegisterTime(env.Script, env.Timers)
	bindings.RegisterEvents(env.Script, env.Events)
	bindings.RegisterAssets(env.Script, env.Assets)
	bindings.RegisterECS(env.Script, env.World)
}

// loadEntry reads and executes the entry script, and (with hot reload
// enabled) watches it for changes.
func (env *Environment) loadEntry() error {
	data, err := env.VFS.Read(env.cfg.EntryScript)
	if err != nil {
		return fmt.Errorf("keystone: read entry script: %w", err)
	}

	if err := env.Script.DoString(env.cfg.EntryScript, string(data)); err != nil {
		env.pushScriptError(err)
		return fmt.Errorf("keystone: execute entry script: %w", err)
	}

	if env.cfg.HotReload {
		env.watcher.Watch(env.entryPath, env.onEntryChanged, nil)
		env.watchFastPath(env.entryPath)
	}
	return nil
}

func (env *Environment) onEntryChanged(changedPath string, userData interface{}) {
	data, err := env.VFS.Read(env.cfg.EntryScript)
	if err != nil {
		env.log.Error().Err(err).Str("path", changedPath).Msg("keystone: entry script reload: read failed")
		return
	}
	if err := env.Script.DoString(env.cfg.EntryScript, string(data)); err != nil {
		env.pushScriptError(err)
		return
	}
	env.log.Info().Str("path", changedPath).Msg("keystone: entry script reloaded")
}

func (env *Environment) pushScriptError(err error) {
	code := env.Errors.NewCode(errorOwnerKeystone, errorSourceScript, errstack.LevelBase, 0)
	env.Errors.Push(code, env.cfg.EntryScript, 0, "%s", err.Error())
}

// installModuleSearcher installs a require() searcher that resolves a dotted
// module name ("a.b.c") against "scripts://a/b/c.lua" and watches the
// resolved file for reload, invalidating the module's package.loaded entry
// so the next require re-executes it.
func (env *Environment) installModuleSearcher() {
	L := env.Script.VM()
	loaders := L.GetField(L.GetGlobal("package"), "loaders")
	loaderTable, ok := loaders.(*lua.LTable)
	if !ok {
		return
	}

	searcher := L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		rel := "scripts://" + strings.ReplaceAll(name, ".", "/") + ".lua"

		physical, err := env.VFS.Resolve(rel)
		if err != nil {
			L.Push(lua.LString(fmt.Sprintf("\n\tno file for module %q", name)))
			return 1
		}

		data, err := env.VFS.Read(rel)
		if err != nil {
			L.Push(lua.LString(fmt.Sprintf("\n\tmodule %q: %s", name, err.Error())))
			return 1
		}

		fn, err := L.LoadString(string(data))
		if err != nil {
			code := env.Errors.NewCode(errorOwnerKeystone, errorSourceModule, errstack.LevelBase, 0)
			env.Errors.Push(code, rel, 0, "%s", err.Error())
			L.Push(lua.LString(err.Error()))
			return 1
		}

		if env.cfg.HotReload {
			moduleName := name
			env.watcher.Watch(physical, func(p string, userData interface{}) {
				env.onModuleChanged(moduleName, p)
			}, nil)
			env.watchFastPath(physical)
		}

		L.Push(fn)
		return 1
	})

	loaderTable.Append(searcher)
}

// onModuleChanged invalidates moduleName's package.loaded cache entry so the
// next require(moduleName) re-executes the (now-changed) file from scratch.
func (env *Environment) onModuleChanged(moduleName, physicalPath string) {
	L := env.Script.VM()
	loadedTbl, ok := L.GetField(L.GetGlobal("package"), "loaded").(*lua.LTable)
	if !ok {
		return
	}
	loadedTbl.RawSetString(moduleName, lua.LNil)
	env.log.Info().Str("module", moduleName).Str("path", physicalPath).Msg("keystone: module cache invalidated")
}

// startFastWatch starts an fsnotify watcher as a supplementary fast-path
// notifier. Its goroutine never touches the VM or the poll-driven watcher
// directly; it only signals fsHit (non-blocking, coalescing). Update drains
// that signal and polls the watcher on every call, whether or not a signal
// arrived.
func (env *Environment) startFastWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	env.fsWatch = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					select {
					case env.fsHit <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				env.log.Warn().Err(err).Msg("keystone: fsnotify watch error")
			}
		}
	}()

	return nil
}

// watchFastPath adds p's containing directory to the fsnotify watch set
// (fsnotify watches directories, not individual files), a no-op if hot
// reload is disabled or the fast-path watcher failed to start.
func (env *Environment) watchFastPath(p string) {
	if env.fsWatch == nil {
		return
	}
	if err := env.fsWatch.Add(path.Dir(p)); err != nil {
		env.log.Debug().Err(err).Str("path", p).Msg("keystone: fsnotify add failed")
	}
}

// Update advances one frame's worth of housekeeping: drains any pending
// fsnotify fast-path signal, polls the file watcher, advances the clock,
// processes timers, and updates assets.
func (env *Environment) Update() {
	select {
	case <-env.fsHit:
	default:
	}

	env.watcher.Poll()
	env.Timers.Update()
	env.Timers.ProcessTimers()
	env.Assets.Update()
}

// Close ends any active profiling session, shuts down the job manager, the
// memory manager, the fsnotify watcher (if started), and releases the
// script VM.
func (env *Environment) Close() {
	env.profSession.End()
	env.Jobs.Shutdown()
	if env.fsWatch != nil {
		env.fsWatch.Close()
	}
	env.Script.Close()
	env.Memory.Shutdown()
}

// AttachProfiling begins a Chrome Tracing session at path, active until
// EndProfiling or Close.
func (env *Environment) AttachProfiling(path string) error {
	return env.profSession.Begin("keystone", path)
}

// EndProfiling closes out the current Chrome Tracing session, if any is
// active. Safe to call even when no session was started.
func (env *Environment) EndProfiling() {
	env.profSession.End()
}

// ProfilerCounters exposes the environment's duration-sample ring for host
// inspection (e.g. a debug overlay averaging "job.execute" or a named
// system's dispatch time).
func (env *Environment) ProfilerCounters() *profiler.Counters { return env.profCounters }
