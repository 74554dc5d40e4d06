package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/workers"

	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the build-time variables plus the runtime platform.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	MediaDir    string
	CacheDir    string
	DatabaseDir string

	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	Extensions        mediatypes.ExtensionSet
	SkipHidden        bool
	ThumbnailWidth    int
	ThumbnailHeight   int
	ScanWorkers       int
	ScanChunkSize     int
	ScanInterval      time.Duration
	ProgressInterval  time.Duration
	WatchEnabled      bool
	WatchDebounce     time.Duration
	PageSize          int
	RecordDerivatives bool

	// Derived paths
	DatabasePath string
	ThumbnailDir string
	ConvertedDir string
}

// Load reads configuration from the environment, after merging an optional
// dotenv file (ENV_FILE, default ".env"). Variables already set in the
// process environment win over the file. Load does not touch the filesystem
// beyond reading that file; see Prepare.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	extensions, ignored := mediatypes.ParseExtensions(getEnv("SUPPORTED_EXTENSIONS", mediatypes.DefaultExtensions))
	for _, ext := range ignored {
		logging.Warn("SUPPORTED_EXTENSIONS: no handler for %s, ignoring", ext)
	}
	if len(extensions) == 0 {
		return nil, errors.New("SUPPORTED_EXTENSIONS contains no supported extension")
	}

	c := &Config{
		MediaDir:          getEnv("MEDIA_DIR", "/media"),
		CacheDir:          getEnv("CACHE_DIR", "/cache"),
		DatabaseDir:       getEnv("DATABASE_DIR", "/database"),
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", false),
		Extensions:        extensions,
		SkipHidden:        getEnvBool("SKIP_HIDDEN", false),
		ThumbnailWidth:    getEnvInt("THUMBNAIL_WIDTH", 200),
		ThumbnailHeight:   getEnvInt("THUMBNAIL_HEIGHT", 200),
		ScanWorkers:       getEnvInt(workers.OverrideEnv, workers.ForCPU(0)),
		ScanChunkSize:     getEnvInt("SCAN_CHUNK_SIZE", 10),
		ScanInterval:      getEnvDuration("SCAN_INTERVAL", 0),
		ProgressInterval:  getEnvDuration("PROGRESS_INTERVAL", 5*time.Second),
		WatchEnabled:      getEnvBool("WATCH_ENABLED", true),
		WatchDebounce:     getEnvDuration("WATCH_DEBOUNCE", 10*time.Second),
		PageSize:          getEnvInt("PAGE_SIZE", 50),
		RecordDerivatives: getEnvBool("RECORD_DERIVATIVES", false),
	}

	var err error
	for _, dir := range []*string{&c.MediaDir, &c.CacheDir, &c.DatabaseDir} {
		if *dir, err = filepath.Abs(*dir); err != nil {
			return nil, fmt.Errorf("failed to resolve path %q: %w", *dir, err)
		}
	}

	c.DatabasePath = filepath.Join(c.DatabaseDir, "catalog.db")
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")
	c.ConvertedDir = filepath.Join(c.CacheDir, "converted")

	return c, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	switch {
	case err == nil:
		logging.Debug("Loaded environment from %s", path)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
}

// Prepare checks the media root and creates the database and derivative
// directories, failing if any of them is not writable. Every derivative is
// written to disk, so unlike the database these are not optional.
func (c *Config) Prepare() error {
	info, err := os.Stat(c.MediaDir)
	if err != nil {
		return fmt.Errorf("media directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media directory %s is not a directory", c.MediaDir)
	}

	for _, d := range []struct{ path, name string }{
		{c.DatabaseDir, "database"},
		{c.ThumbnailDir, "thumbnail"},
		{c.ConvertedDir, "converted"},
	} {
		if err := ensureWritableDir(d.path); err != nil {
			return fmt.Errorf("%s directory: %w", d.name, err)
		}
		logging.Debug("  [OK] %s directory ready: %s", d.name, d.path)
	}
	return nil
}

// LoadConfig is Load plus Prepare with the startup banner and a dump of the
// effective settings. The server uses it; the rescan CLI uses Load directly.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	c, err := Load()
	if err != nil {
		return nil, err
	}

	section("CONFIGURATION")
	logging.Info("  MEDIA_DIR:            %s", c.MediaDir)
	logging.Info("  CACHE_DIR:            %s", c.CacheDir)
	logging.Info("  DATABASE_DIR:         %s", c.DatabaseDir)
	logging.Info("  PORT:                 %s", c.Port)
	logging.Info("  METRICS_PORT:         %s (enabled: %v)", c.MetricsPort, c.MetricsEnabled)
	logging.Info("  SUPPORTED_EXTENSIONS: %s", strings.Join(c.Extensions.Sorted(), ","))
	logging.Info("  SKIP_HIDDEN:          %v", c.SkipHidden)
	logging.Info("  THUMBNAIL_SIZE:       %dx%d", c.ThumbnailWidth, c.ThumbnailHeight)
	logging.Info("  SCAN_WORKERS:         %d", c.ScanWorkers)
	logging.Info("  SCAN_CHUNK_SIZE:      %d", c.ScanChunkSize)
	logging.Info("  SCAN_INTERVAL:        %s", durationOrOff(c.ScanInterval))
	logging.Info("  WATCH_ENABLED:        %v (debounce: %v)", c.WatchEnabled, c.WatchDebounce)
	logging.Info("  PAGE_SIZE:            %d", c.PageSize)
	logging.Info("  RECORD_DERIVATIVES:   %v", c.RecordDerivatives)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())

	section("DIRECTORY SETUP")
	if err := c.Prepare(); err != nil {
		return nil, err
	}
	logging.Info("  [OK] Media, database and cache directories ready")

	return c, nil
}

// LogGeneratorInit reports which external decoders are usable.
func LogGeneratorInit(vipsAvailable bool) {
	section("GENERATOR INITIALIZATION")

	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if version, err := toolVersion(tool); err != nil {
			logging.Warn("  %s unavailable: %v", tool, err)
		} else {
			logging.Info("  [OK] %s", version)
		}
	}

	if vipsAvailable {
		logging.Info("  [OK] libvips available for HEIC/HEIF conversion")
	} else {
		logging.Warn("  libvips unavailable, HEIC/HEIF conversion falls back to ffmpeg")
	}
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(c *Config, startupDuration time.Duration) {
	section("SERVER STARTED")
	logging.Info("  Startup time:  %v", startupDuration)
	logging.Info("  API:           http://0.0.0.0:%s/api", c.Port)
	if c.MetricsEnabled {
		logging.Info("  Metrics:       http://0.0.0.0:%s/metrics", c.MetricsPort)
	} else {
		logging.Info("  Metrics:       DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a completed shutdown step.
func LogShutdownStep(step string) {
	logging.Info("  [OK] %s", step)
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func printBanner() {
	fmt.Println(`
------------------------------------------------------------
   media-catalog
------------------------------------------------------------`)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}
}

func ensureWritableDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(path, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		logging.Warn("failed to remove write test file %s: %v", probe, err)
	}
	return nil
}

func toolVersion(name string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", name, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(first), nil
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid positive integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
