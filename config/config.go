// Package config implements the configuration ingest of §4.8/§6/F.3:
// CLI flags, environment variable fallback, and the "set if unset"
// merge against a subclass's own declared defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InputMode selects the main consumer's topic scheduling policy (§4.5).
type InputMode string

const (
	ModeParity InputMode = "parity"
	ModeExp    InputMode = "exp"
)

// GroupMode selects how the consumer group name is derived (§3 Link
// identity): explicit, per-class default, or per-instance (UID-derived).
type GroupMode int

const (
	GroupExplicit GroupMode = iota
	GroupPerClass
	GroupPerInstance
)

// Config is the merged result of CLI flags, a subclass's own declared
// defaults and the optional YAML defaults file (§6 command-line surface).
type Config struct {
	LogLevel  string
	Mode      InputMode
	Sync      bool
	Seq       bool
	GroupMode GroupMode // derived from RandomConsumerGroup + subclass default

	RandomConsumerGroup bool

	RPCThreads  int
	MainThreads int

	Input  []string
	Output []string

	BusEndpoint string
	Group       string

	ConsumerTimeout time.Duration

	StoreA string // -a, KV store endpoint
	StoreB string // -m, document store endpoint

	// Spare holds the positional arguments left after flag parsing
	// stops, for a subclass's own setup() hook to consume (§F.3). An
	// unrecognized flag is not kept here: it makes Ingest return an error.
	Spare []string
}

// Defaults is the subset of Config fields a subclass may pre-declare
// before Ingest runs; Ingest only overrides a field here when the
// corresponding flag was explicitly set on the command line (the "set
// if unset" idiom of §6).
type Defaults struct {
	LogLevel            string        `yaml:"log_level"`
	Mode                InputMode     `yaml:"input_mode"`
	Sync                bool          `yaml:"sync"`
	Seq                 bool          `yaml:"seq"`
	RandomConsumerGroup bool          `yaml:"random_consumer_group"`
	RPCThreads          int           `yaml:"rpc_threads"`
	MainThreads         int           `yaml:"main_threads"`
	Input               []string      `yaml:"input"`
	Output              []string      `yaml:"output"`
	BusEndpoint         string        `yaml:"bus_endpoint"`
	Group               string        `yaml:"group"`
	ConsumerTimeout     time.Duration `yaml:"consumer_timeout"`
	StoreA              string        `yaml:"store_a"`
	StoreB              string        `yaml:"store_b"`
}

// loadYAMLDefaults reads an optional YAML defaults file (the
// lowest-priority layer: CLI flag wins over subclass Defaults, which
// wins over this file), in the same "read file, unmarshal" idiom as
// the teacher's own internal/config.Load. An empty path means no file
// and yields zero Defaults; a named file that cannot be read or parsed
// is an error.
func loadYAMLDefaults(path string) (Defaults, error) {
	var d Defaults
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return d, nil
}

// mergeDefaults fills any zero-valued field of primary from fallback,
// giving the subclass's hard-coded Defaults priority over the YAML
// file's.
func mergeDefaults(primary, fallback Defaults) Defaults {
	if primary.LogLevel == "" {
		primary.LogLevel = fallback.LogLevel
	}
	if primary.Mode == "" {
		primary.Mode = fallback.Mode
	}
	if !primary.Sync {
		primary.Sync = fallback.Sync
	}
	if !primary.Seq {
		primary.Seq = fallback.Seq
	}
	if !primary.RandomConsumerGroup {
		primary.RandomConsumerGroup = fallback.RandomConsumerGroup
	}
	if primary.RPCThreads == 0 {
		primary.RPCThreads = fallback.RPCThreads
	}
	if primary.MainThreads == 0 {
		primary.MainThreads = fallback.MainThreads
	}
	if len(primary.Input) == 0 {
		primary.Input = fallback.Input
	}
	if len(primary.Output) == 0 {
		primary.Output = fallback.Output
	}
	if primary.BusEndpoint == "" {
		primary.BusEndpoint = fallback.BusEndpoint
	}
	if primary.Group == "" {
		primary.Group = fallback.Group
	}
	if primary.ConsumerTimeout == 0 {
		primary.ConsumerTimeout = fallback.ConsumerTimeout
	}
	if primary.StoreA == "" {
		primary.StoreA = fallback.StoreA
	}
	if primary.StoreB == "" {
		primary.StoreB = fallback.StoreB
	}
	return primary
}

const defaultConsumerTimeoutSeconds = 60

// Ingest parses args against the CLI surface of §6 and applies the
// subclass's Defaults (backed by the optional --config YAML file)
// wherever a flag was not explicitly provided. It reads no environment
// variables; ReadEnv does that separately.
func Ingest(args []string, defaults Defaults) (*Config, error) {
	fs := flag.NewFlagSet("catenae", flag.ContinueOnError)

	logLevel := fs.String("log-level", "", "log verbosity")
	inputMode := fs.String("input-mode", "", "parity|exp")
	sync := fs.Bool("sync", false, "synchronous publish + manual commit")
	seq := fs.Bool("seq", false, "sequential mode: single worker, UID-pinned partitioning")
	randomGroup := fs.Bool("random-consumer-group", false, "derive the consumer group from the link UID")
	rpcThreads := fs.Int("rpc-threads", 0, "RPC worker pool size")
	mainThreads := fs.Int("main-threads", 0, "main worker pool size")
	input := fs.String("i", "", "comma-separated input topics")
	fs.StringVar(input, "input", "", "comma-separated input topics")
	output := fs.String("o", "", "comma-separated output topics")
	fs.StringVar(output, "output", "", "comma-separated output topics")
	busEndpoint := fs.String("k", "", "bus endpoint")
	group := fs.String("g", "", "consumer group")
	consumerTimeout := fs.Int("consumer-timeout", 0, "consumer timeout in seconds")
	storeA := fs.String("a", "", "key-value store endpoint")
	storeB := fs.String("m", "", "document store endpoint")
	configFile := fs.String("config", "", "optional YAML defaults file (lowest-priority layer)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	fileDefaults, err := loadYAMLDefaults(*configFile)
	if err != nil {
		return nil, err
	}
	defaults = mergeDefaults(defaults, fileDefaults)

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := &Config{
		LogLevel:            firstNonEmpty(set["log-level"], *logLevel, defaults.LogLevel),
		Mode:                InputMode(firstNonEmpty(set["input-mode"], *inputMode, string(defaults.Mode))),
		Sync:                firstBool(set["sync"], *sync, defaults.Sync),
		Seq:                 firstBool(set["seq"], *seq, defaults.Seq),
		RandomConsumerGroup: firstBool(set["random-consumer-group"], *randomGroup, defaults.RandomConsumerGroup),
		RPCThreads:          firstInt(set["rpc-threads"], *rpcThreads, defaults.RPCThreads),
		MainThreads:         firstInt(set["main-threads"], *mainThreads, defaults.MainThreads),
		Input:               splitOrDefault(set["i"] || set["input"], *input, defaults.Input),
		Output:              splitOrDefault(set["o"] || set["output"], *output, defaults.Output),
		BusEndpoint:         firstNonEmpty(set["k"], *busEndpoint, defaults.BusEndpoint),
		Group:               firstNonEmpty(set["g"], *group, defaults.Group),
		StoreA:              firstNonEmpty(set["a"], *storeA, defaults.StoreA),
		StoreB:              firstNonEmpty(set["m"], *storeB, defaults.StoreB),
		Spare:               fs.Args(),
	}

	switch {
	case set["consumer-timeout"]:
		cfg.ConsumerTimeout = time.Duration(*consumerTimeout) * time.Second
	case defaults.ConsumerTimeout != 0:
		cfg.ConsumerTimeout = defaults.ConsumerTimeout
	default:
		cfg.ConsumerTimeout = defaultConsumerTimeoutSeconds * time.Second
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeParity
	}

	cfg.GroupMode = resolveGroupMode(cfg.Group, cfg.RandomConsumerGroup)

	return cfg, nil
}

// resolveGroupMode implements the three-way flag of §3: explicit group
// name wins, else --random-consumer-group selects per-instance, else
// per-class default.
func resolveGroupMode(group string, random bool) GroupMode {
	if group != "" {
		return GroupExplicit
	}
	if random {
		return GroupPerInstance
	}
	return GroupPerClass
}

func firstNonEmpty(flagSet bool, flagVal, fallback string) string {
	if flagSet {
		return flagVal
	}
	if fallback != "" {
		return fallback
	}
	return flagVal
}

func firstBool(flagSet bool, flagVal, fallback bool) bool {
	if flagSet {
		return flagVal
	}
	return fallback
}

func firstInt(flagSet bool, flagVal, fallback int) int {
	if flagSet {
		return flagVal
	}
	if fallback != 0 {
		return fallback
	}
	return flagVal
}

func splitOrDefault(flagSet bool, flagVal string, fallback []string) []string {
	if flagSet && flagVal != "" {
		return strings.Split(flagVal, ",")
	}
	if len(fallback) > 0 {
		return fallback
	}
	if flagVal != "" {
		return strings.Split(flagVal, ",")
	}
	return nil
}

// Env holds the environment fallback variables of §6/F.3, as read by
// ReadEnv: CATENAE_DOCKER, HOSTNAME, JSONRPC_HOST, JSONRPC_PORT,
// JSONRPC_SCHEME.
type Env struct {
	Docker        bool
	Hostname      string
	JSONRPCHost   string
	JSONRPCPort   string
	JSONRPCScheme string
}

// ReadEnv reads the process environment into an Env.
func ReadEnv() Env {
	return Env{
		Docker:        truthy(os.Getenv("CATENAE_DOCKER")),
		Hostname:      os.Getenv("HOSTNAME"),
		JSONRPCHost:   os.Getenv("JSONRPC_HOST"),
		JSONRPCPort:   os.Getenv("JSONRPC_PORT"),
		JSONRPCScheme: os.Getenv("JSONRPC_SCHEME"),
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
