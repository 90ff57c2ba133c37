package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
	"mirrord.dev/launch/internal/core/snapshot"
)

// Test doubles

type fakeExecManager struct {
	mu       sync.Mutex
	patch    *ports.Patch
	err      error
	requests []ports.PatchRequest
}

func (f *fakeExecManager) ComputePatch(ctx context.Context, req ports.PatchRequest) (*ports.Patch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.patch == nil {
		return nil, nil
	}
	env := make(map[string]string, len(f.patch.Environment))
	for k, v := range f.patch.Environment {
		env[k] = v
	}
	return &ports.Patch{Environment: env, PatchedPath: f.patch.PatchedPath}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifySimple(message string, notificationType ports.NotificationType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, string(notificationType)+": "+message)
}

type fakeLogger struct {
	mu     sync.Mutex
	errors []error
	level  ports.LogLevel
}

func (f *fakeLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {}

func (f *fakeLogger) LogError(err error, message string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
}

func (f *fakeLogger) LogLaunch(id runconfig.LaunchID, env *runconfig.LaunchEnvironment, message string) {}

func (f *fakeLogger) SetLogLevel(level ports.LogLevel) { f.level = level }

func (f *fakeLogger) GetLogLevel() ports.LogLevel { return f.level }

// serverModels reaches the model the way a host adapter would
type serverModels struct{}

func (serverModels) ServerModel(view runconfig.View) (runconfig.ServerModel, error) {
	cfg, ok := view.(*runconfig.RunConfiguration)
	if !ok {
		return runconfig.ServerModel{}, runconfig.ErrReflectiveAccess
	}
	model, ok := cfg.ServerModel()
	if !ok {
		return runconfig.ServerModel{}, runconfig.ErrReflectiveAccess
	}
	return model, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	phases []ports.LifecyclePhase
}

func (r *recordingObserver) OnLifecycleEvent(event ports.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, event.Phase)
}

type pidHandle int

func (p pidHandle) PID() int { return int(p) }

// Builders

type interceptorFixture struct {
	interceptor *LaunchInterceptor
	exec        *fakeExecManager
	notifier    *fakeNotifier
	logger      *fakeLogger
	observer    *recordingObserver
}

func newFixture(goos string, patch *ports.Patch) *interceptorFixture {
	settings := DefaultInterceptorSettings()
	settings.Platform = runconfig.Platform{GOOS: goos}
	return newFixtureWithSettings(settings, patch)
}

func newFixtureWithSettings(settings InterceptorSettings, patch *ports.Patch) *interceptorFixture {
	f := &interceptorFixture{
		exec:     &fakeExecManager{patch: patch},
		notifier: &fakeNotifier{},
		logger:   &fakeLogger{},
		observer: &recordingObserver{},
	}
	f.interceptor = NewLaunchInterceptor(f.exec, serverModels{}, f.notifier, f.logger, snapshot.NewStore(), settings)
	f.interceptor.SetObserver(f.observer)
	return f
}

func tomcatDocument() runconfig.Document {
	return runconfig.Document{
		Name: "Tomcat 10.1",
		Kind: "tomcat",
		Environment: runconfig.EnvironmentVariables{
			{Name: "CATALINA_OPTS", Value: "-Xmx1g"},
			{Name: DefaultConfigEnvName, Value: "/home/dev/.mirrord/mirrord.json"},
			{Name: "LOCKED", Value: "keep", ReadOnly: true},
		},
		Startup: runconfig.StartupDescriptor{
			UseDefault:    true,
			DefaultScript: "/opt/tomcat/bin/catalina.sh run",
			VMParameters:  "-Dfile.encoding=UTF-8",
		},
		JavaParameters: []string{"-Dcatalina.base=/tmp/base"},
		Server:         &runconfig.ServerModel{Home: "/opt/tomcat", JNDIPort: 1099},
	}
}

func newTomcat(t require.TestingT, doc runconfig.Document) *runconfig.RunConfiguration {
	cfg, err := runconfig.NewRunConfiguration(doc)
	require.NoError(t, err)
	return cfg
}

func layerPatch() *ports.Patch {
	return &ports.Patch{Environment: map[string]string{
		"LD_PRELOAD":         "/tmp/libmirrord_layer.so",
		"MIRRORD_LAYER_FILE": "/tmp/layer.json",
	}}
}

// Tests

func TestLaunchInterceptor_IgnoresUnmanagedLaunches(t *testing.T) {
	f := newFixture("linux", layerPatch())

	tests := []struct {
		name   string
		mutate func(*runconfig.Document)
	}{
		{name: "other_kind", mutate: func(d *runconfig.Document) { d.Kind = "spring-boot" }},
		{name: "other_name", mutate: func(d *runconfig.Document) { d.Name = "Jetty 12" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tomcatDocument()
			tt.mutate(&doc)
			cfg := newTomcat(t, doc)

			f.interceptor.ProcessStartScheduled(context.Background(), "id", cfg.LaunchEnvironment())

			assert.Equal(t, doc, cfg.Document())
			assert.Equal(t, 0, f.interceptor.Snapshots().Len())
		})
	}

	f.interceptor.ProcessStartScheduled(context.Background(), "nil", nil)
	f.interceptor.ProcessStartScheduled(context.Background(), "nil-config", &runconfig.LaunchEnvironment{Name: "Tomcat", Kind: "tomcat"})
	assert.Empty(t, f.exec.requests, "exec manager must not be consulted for unmanaged launches")
}

func TestLaunchInterceptor_PatchesEnvironment(t *testing.T) {
	f := newFixture("linux", layerPatch())
	cfg := newTomcat(t, tomcatDocument())
	id := runconfig.LaunchID("launch-1")

	f.interceptor.ProcessStartScheduled(context.Background(), id, cfg.LaunchEnvironment())

	env := cfg.EnvironmentVariables()
	assert.Equal(t, runconfig.EnvironmentVariables{
		{Name: "CATALINA_OPTS", Value: "-Xmx1g"},
		{Name: DefaultConfigEnvName, Value: "/home/dev/.mirrord/mirrord.json"},
		{Name: "LOCKED", Value: "keep", ReadOnly: true},
		{Name: "LD_PRELOAD", Value: "/tmp/libmirrord_layer.so"},
		{Name: "MIRRORD_LAYER_FILE", Value: "/tmp/layer.json"},
		{Name: DetectDebuggerPortEnv, Value: "javaagent"},
		{Name: IgnoreDebuggerPortsEnv, Value: "8005"},
	}, env)
	assert.Equal(t, tomcatDocument().Startup, cfg.StartupDescriptor(), "descriptor is only rewritten on macOS")
	assert.True(t, f.interceptor.Snapshots().Has(id))

	require.Len(t, f.exec.requests, 1)
	assert.Equal(t, ports.PatchRequest{
		Product:       "idea",
		Executable:    "/opt/tomcat/bin/catalina.sh",
		ConfigFromEnv: "/home/dev/.mirrord/mirrord.json",
	}, f.exec.requests[0])
	assert.Equal(t, []ports.LifecyclePhase{ports.PhaseScheduled, ports.PhasePatched}, f.observer.phases)
}

func TestLaunchInterceptor_StartedRestoresConfiguration(t *testing.T) {
	f := newFixture("linux", layerPatch())
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)
	env := cfg.LaunchEnvironment()

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", env)
	f.interceptor.ProcessStarted("launch-1", env, pidHandle(4242))

	assert.Equal(t, doc, cfg.Document())
	assert.Equal(t, 0, f.interceptor.Snapshots().Len())
	assert.Equal(t, []ports.LifecyclePhase{
		ports.PhaseScheduled, ports.PhasePatched, ports.PhaseStarted, ports.PhaseRestored,
	}, f.observer.phases)
}

func TestLaunchInterceptor_NoPatchLeavesConfigurationUntouched(t *testing.T) {
	f := newFixture("darwin", nil)
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	assert.Equal(t, doc, cfg.Document())
	assert.False(t, f.interceptor.Snapshots().Has("launch-1"))
	assert.Empty(t, f.notifier.messages, "a declined patch is not an error")
	assert.Equal(t, []ports.LifecyclePhase{ports.PhaseScheduled, ports.PhaseSkipped}, f.observer.phases)
}

func TestLaunchInterceptor_ExecManagerFailureNotifiesOnce(t *testing.T) {
	f := newFixture("linux", nil)
	f.exec.err = errors.New("mirrord exited with status 1")
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	assert.Equal(t, doc, cfg.Document())
	assert.Equal(t, 0, f.interceptor.Snapshots().Len())
	assert.Equal(t, []string{"warning: " + failureNotification}, f.notifier.messages)
	require.Len(t, f.logger.errors, 1)
	assert.True(t, errors.Is(f.logger.errors[0], runconfig.ErrPatchUnavailable))
	assert.Equal(t, []ports.LifecyclePhase{ports.PhaseScheduled, ports.PhaseFailed}, f.observer.phases)
}

func TestLaunchInterceptor_UnresolvableScriptNotifies(t *testing.T) {
	f := newFixture("linux", layerPatch())
	doc := tomcatDocument()
	doc.Startup.DefaultScript = ""
	doc.Server = nil
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	assert.Equal(t, doc, cfg.Document())
	assert.Empty(t, f.exec.requests)
	require.Len(t, f.logger.errors, 1)
	assert.True(t, errors.Is(f.logger.errors[0], runconfig.ErrReflectiveAccess))
	assert.Len(t, f.notifier.messages, 1)
}

func TestLaunchInterceptor_DerivesScriptFromInstallationRoot(t *testing.T) {
	f := newFixture("linux", layerPatch())
	doc := tomcatDocument()
	doc.Startup.DefaultScript = ""
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	require.Len(t, f.exec.requests, 1)
	assert.Equal(t, "/opt/tomcat/bin/catalina.sh", f.exec.requests[0].Executable)
}

func TestLaunchInterceptor_PassesWSLTarget(t *testing.T) {
	f := newFixture("windows", nil)
	doc := tomcatDocument()
	doc.Target = &runconfig.ExecutionTarget{WSLDistribution: "Ubuntu-22.04"}
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	require.Len(t, f.exec.requests, 1)
	assert.Equal(t, "Ubuntu-22.04", f.exec.requests[0].WSLDistribution)
}

func TestLaunchInterceptor_MacRewritesStartupScript(t *testing.T) {
	patch := layerPatch()
	patch.Environment["JAVA_OPTS"] = "-javaagent:/tmp/mirrord-agent.jar"
	patch.PatchedPath = "/tmp/mirrord-bin/opt/tomcat/bin/catalina.sh"
	f := newFixture("darwin", patch)
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)
	env := cfg.LaunchEnvironment()

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", env)

	assert.Equal(t, runconfig.StartupDescriptor{
		UseDefault:        false,
		Script:            "/tmp/mirrord-bin/opt/tomcat/bin/catalina.sh",
		DefaultScript:     "/opt/tomcat/bin/catalina.sh run",
		ProgramParameters: "run",
		VMParameters:      "-Dfile.encoding=UTF-8 -Dcatalina.base=/tmp/base",
	}, cfg.StartupDescriptor())

	javaOpts, ok := cfg.EnvironmentVariables().Find("JAVA_OPTS")
	require.True(t, ok)
	assert.Equal(t, "-javaagent:/tmp/mirrord-agent.jar -Dcom.sun.management.jmxremote= "+
		"-Dcom.sun.management.jmxremote.port=1099 -Dcom.sun.management.jmxremote.ssl=false "+
		"-Dcom.sun.management.jmxremote.authenticate=false -Djava.rmi.server.hostname=127.0.0.1", javaOpts.Value)

	f.interceptor.ProcessNotStarted("launch-1", env)

	assert.Equal(t, doc, cfg.Document())
	assert.Equal(t, 0, f.interceptor.Snapshots().Len())
}

func TestLaunchInterceptor_MacWithoutPatchedPathKeepsScript(t *testing.T) {
	f := newFixture("darwin", layerPatch())
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	assert.Equal(t, doc.Startup, cfg.StartupDescriptor())
	saved, ok := f.interceptor.Snapshots().TakeAndRemove("launch-1")
	require.True(t, ok)
	assert.Nil(t, saved.Startup, "descriptor is only captured when it will be rewritten")
}

func TestLaunchInterceptor_PatchedPathIgnoredOffMac(t *testing.T) {
	patch := layerPatch()
	patch.PatchedPath = "/tmp/patched.sh"
	f := newFixture("linux", patch)
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	assert.Equal(t, doc.Startup, cfg.StartupDescriptor())
	_, ok := cfg.EnvironmentVariables().Find("JAVA_OPTS")
	assert.False(t, ok)
}

func TestLaunchInterceptor_MacRewriteFailureRollsBack(t *testing.T) {
	patch := layerPatch()
	patch.PatchedPath = "/tmp/patched.sh"
	f := newFixture("darwin", patch)
	doc := tomcatDocument()
	doc.Startup = runconfig.StartupDescriptor{Script: "/srv/catalina.sh", ProgramParameters: "run"}
	doc.Server = nil
	cfg := newTomcat(t, doc)
	env := cfg.LaunchEnvironment()

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", env)

	assert.Equal(t, doc, cfg.Document(), "a failed rewrite must leave the configuration as it was")
	assert.Equal(t, 0, f.interceptor.Snapshots().Len())
	require.Len(t, f.logger.errors, 1)
	assert.True(t, errors.Is(f.logger.errors[0], runconfig.ErrReflectiveAccess))
	assert.Equal(t, []string{"warning: " + failureNotification}, f.notifier.messages)

	// the host still reports the outcome; nothing left to restore
	f.interceptor.ProcessStarted("launch-1", env, pidHandle(1))
	assert.Equal(t, doc, cfg.Document())
}

type panickingExecManager struct{}

func (panickingExecManager) ComputePatch(ctx context.Context, req ports.PatchRequest) (*ports.Patch, error) {
	panic("exec manager crashed")
}

type panickingServerModels struct{}

func (panickingServerModels) ServerModel(view runconfig.View) (runconfig.ServerModel, error) {
	panic("server model crashed")
}

func TestLaunchInterceptor_CollaboratorPanicRollsBack(t *testing.T) {
	patch := layerPatch()
	patch.PatchedPath = "/tmp/patched.sh"

	tests := []struct {
		name         string
		execManager  ports.ExecManager
		serverModels ports.ServerModelResolver
		wantPanic    string
	}{
		{name: "exec_manager", execManager: panickingExecManager{}, serverModels: serverModels{}, wantPanic: "exec manager crashed"},
		{name: "server_model_after_patching", execManager: &fakeExecManager{patch: patch}, serverModels: panickingServerModels{}, wantPanic: "server model crashed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultInterceptorSettings()
			settings.Platform = runconfig.Platform{GOOS: "darwin"}
			notifier := &fakeNotifier{}
			logger := &fakeLogger{}
			interceptor := NewLaunchInterceptor(tt.execManager, tt.serverModels, notifier, logger, snapshot.NewStore(), settings)

			doc := tomcatDocument()
			doc.Startup = runconfig.StartupDescriptor{Script: "/srv/catalina.sh", ProgramParameters: "run"}
			cfg := newTomcat(t, doc)

			assert.NotPanics(t, func() {
				interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())
			})

			assert.Equal(t, doc, cfg.Document())
			assert.Equal(t, 0, interceptor.Snapshots().Len())
			require.Len(t, logger.errors, 1)
			assert.Contains(t, logger.errors[0].Error(), tt.wantPanic)
			assert.Equal(t, []string{"warning: " + failureNotification}, notifier.messages)
		})
	}
}

func TestLaunchInterceptor_RestoreIsAtMostOnce(t *testing.T) {
	f := newFixture("linux", layerPatch())
	doc := tomcatDocument()
	cfg := newTomcat(t, doc)
	env := cfg.LaunchEnvironment()

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", env)
	assert.True(t, f.interceptor.Restore("launch-1", env))

	// the user edits the configuration after the launch
	cfg.AddEnvironmentVariable(runconfig.EnvironmentVariable{Name: "EDITED", Value: "1"})
	after := cfg.Document()

	assert.False(t, f.interceptor.Restore("launch-1", env))
	f.interceptor.ProcessNotStarted("launch-1", env)
	assert.Equal(t, after, cfg.Document(), "second restore must not touch the configuration")
}

func TestLaunchInterceptor_ServerPortVariable(t *testing.T) {
	tests := []struct {
		name string
		port string
		want string
	}{
		{name: "default_port", port: "", want: "8005"},
		{name: "override", port: "9005", want: "9005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultInterceptorSettings()
			settings.Platform = runconfig.Platform{GOOS: "linux"}
			settings.ServerPort = tt.port
			f := newFixtureWithSettings(settings, layerPatch())
			cfg := newTomcat(t, tomcatDocument())

			f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

			v, ok := cfg.EnvironmentVariables().Find(IgnoreDebuggerPortsEnv)
			require.True(t, ok)
			assert.Equal(t, tt.want, v.Value)
		})
	}
}

func TestLaunchInterceptor_DerivedVariablesOverridePatch(t *testing.T) {
	patch := layerPatch()
	patch.Environment[IgnoreDebuggerPortsEnv] = "1234"
	f := newFixture("linux", patch)
	cfg := newTomcat(t, tomcatDocument())

	f.interceptor.ProcessStartScheduled(context.Background(), "launch-1", cfg.LaunchEnvironment())

	v, _ := cfg.EnvironmentVariables().Find(IgnoreDebuggerPortsEnv)
	assert.Equal(t, "8005", v.Value)
}

func TestLaunchInterceptor_ConcurrentLaunches(t *testing.T) {
	f := newFixture("linux", layerPatch())
	const launches = 32

	configs := make([]*runconfig.RunConfiguration, launches)
	docs := make([]runconfig.Document, launches)
	for i := range configs {
		doc := tomcatDocument()
		doc.Name = fmt.Sprintf("Tomcat %d", i)
		doc.Environment = append(doc.Environment, runconfig.EnvironmentVariable{Name: "INDEX", Value: fmt.Sprint(i)})
		docs[i] = doc
		configs[i] = newTomcat(t, doc)
	}

	var wg sync.WaitGroup
	for i := range configs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := runconfig.LaunchID(fmt.Sprintf("launch-%d", i))
			env := configs[i].LaunchEnvironment()
			f.interceptor.ProcessStartScheduled(context.Background(), id, env)
			f.interceptor.ProcessStarted(id, env, pidHandle(i))
		}(i)
	}
	wg.Wait()

	for i := range configs {
		assert.Equal(t, docs[i], configs[i].Document())
	}
	assert.Equal(t, 0, f.interceptor.Snapshots().Len())
}

// TestLaunchInterceptor_PropertyBased_RoundTrip checks that any launch ends
// with the configuration exactly as it was before scheduling.
func TestLaunchInterceptor_PropertyBased_RoundTrip(t *testing.T) {
	nameGen := rapid.StringMatching(`[A-Z][A-Z_]{0,8}`)

	rapid.Check(t, func(t *rapid.T) {
		goos := rapid.SampledFrom([]string{"linux", "darwin", "windows"}).Draw(t, "goos")

		names := rapid.SliceOfNDistinct(nameGen, 0, 8, func(s string) string { return s }).Draw(t, "names")
		env := make(runconfig.EnvironmentVariables, 0, len(names))
		for _, name := range names {
			env = append(env, runconfig.EnvironmentVariable{
				Name:     name,
				Value:    rapid.String().Draw(t, "value"),
				ReadOnly: rapid.Bool().Draw(t, "readOnly"),
			})
		}

		doc := tomcatDocument()
		doc.Environment = env
		doc.Startup = runconfig.StartupDescriptor{
			UseDefault:        rapid.Bool().Draw(t, "useDefault"),
			Script:            rapid.StringMatching(`/[a-z ]{1,10}\.sh`).Draw(t, "script"),
			DefaultScript:     rapid.StringMatching(`(/[a-z\\ ]{1,10}( -[a-z]{1,3})?)?`).Draw(t, "defaultScript"),
			ProgramParameters: rapid.StringMatching(`[a-z -]{0,10}`).Draw(t, "args"),
			VMParameters:      rapid.StringMatching(`(-D[a-z]=[a-z&]{0,4})?`).Draw(t, "vmArgs"),
		}

		patchEnv := rapid.MapOf(nameGen, rapid.String()).Draw(t, "patchEnv")
		var patch *ports.Patch
		if rapid.Bool().Draw(t, "hasPatch") {
			patch = &ports.Patch{Environment: patchEnv}
			if rapid.Bool().Draw(t, "hasPatchedPath") {
				patch.PatchedPath = "/tmp/mirrord-bin/catalina.sh"
			}
		}

		f := newFixture(goos, patch)
		cfg := newTomcat(t, doc)
		launch := cfg.LaunchEnvironment()
		id := runconfig.GenerateLaunchID()

		f.interceptor.ProcessStartScheduled(context.Background(), id, launch)
		if rapid.Bool().Draw(t, "started") {
			f.interceptor.ProcessStarted(id, launch, pidHandle(1))
		} else {
			f.interceptor.ProcessNotStarted(id, launch)
		}

		assert.Equal(t, doc, cfg.Document())
		assert.False(t, f.interceptor.Snapshots().Has(id))
	})
}
