// Package config loads plugin settings and arena definitions.
package config

import (
	"bytes"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"battlearena/internal/domain"
)

type TeamConfig struct {
	Selection   string   `mapstructure:"selection"`
	Names       []string `mapstructure:"names"`
	MinTeams    int      `mapstructure:"min_teams"`
	MaxTeams    int      `mapstructure:"max_teams"`
	MinTeamSize int      `mapstructure:"min_team_size"`
	MaxTeamSize int      `mapstructure:"max_team_size"`
}

type PhaseConfig struct {
	Type          string        `mapstructure:"type"`
	Next          string        `mapstructure:"next"`
	AllowJoin     *bool         `mapstructure:"allow_join"`
	AllowSpectate *bool         `mapstructure:"allow_spectate"`
	Duration      time.Duration `mapstructure:"duration"`
}

type MapConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

type ArenaConfig struct {
	Name         string        `mapstructure:"name"`
	Teams        TeamConfig    `mapstructure:"teams"`
	Phases       []PhaseConfig `mapstructure:"phases"`
	InitialPhase string        `mapstructure:"initial_phase"`
	Maps         []MapConfig   `mapstructure:"maps"`
	MaxPlayers   int           `mapstructure:"max_players"`
	OnDemand     bool          `mapstructure:"on_demand"`
}

type TournamentConfig struct {
	AdvanceDelay   time.Duration `mapstructure:"advance_delay"`
	WinCommands    []string      `mapstructure:"win_commands"`
	StartBroadcast bool          `mapstructure:"start_broadcast"`
}

type DuelConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// VoiceConfig configures Vivox team channel tokens.
type VoiceConfig struct {
	Issuer   string        `mapstructure:"issuer"`
	Domain   string        `mapstructure:"domain"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Config is the whole plugin configuration file.
type Config struct {
	MaxDynamicMaps int               `mapstructure:"max_dynamic_maps"`
	HistoryPath    string            `mapstructure:"history_path"`
	CallTimeout    time.Duration     `mapstructure:"call_timeout"`
	Tournament     TournamentConfig  `mapstructure:"tournament"`
	Duel           DuelConfig        `mapstructure:"duel"`
	Voice          VoiceConfig       `mapstructure:"voice"`
	Telemetry      TelemetryConfig   `mapstructure:"telemetry"`
	Messages       map[string]string `mapstructure:"messages"`
	Arenas         []ArenaConfig     `mapstructure:"arenas"`
}

// Default returns the settings used when the file leaves them out.
func Default() Config {
	return Config{
		MaxDynamicMaps: 16,
		HistoryPath:    "data/arena_history.db",
		CallTimeout:    5 * time.Second,
		Tournament:     TournamentConfig{AdvanceDelay: 10 * time.Second, StartBroadcast: true},
		Duel:           DuelConfig{RequestTimeout: 30 * time.Second},
		Voice:          VoiceConfig{TokenTTL: 90 * time.Second},
		Telemetry:      TelemetryConfig{SampleRate: 0.6},
	}
}

// Load reads a YAML or JSON configuration file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrapf(err, "failed to read config %s", path)
	}
	return decode(v)
}

// Parse reads configuration from memory. format is a viper config type such as "yaml".
func Parse(data []byte, format string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, eris.Wrap(err, "failed to parse config")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	c := Default()
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "failed to decode config")
	}
	return &c, nil
}

// ApplyEnv overrides settings from the Nakama runtime environment.
func (c *Config) ApplyEnv(env map[string]string) {
	if v := env["arena_history_path"]; v != "" {
		c.HistoryPath = v
	}
	if v := env["vivox_issuer"]; v != "" {
		c.Voice.Issuer = v
	}
	if v := env["vivox_domain"]; v != "" {
		c.Voice.Domain = v
	}
	if v := env["vivox_secret"]; v != "" {
		c.Voice.Secret = v
	}
	if v, err := strconv.ParseBool(env["arena_trace_enabled"]); err == nil {
		c.Telemetry.Enabled = v
	}
	if v := env["arena_trace_endpoint"]; v != "" {
		c.Telemetry.Endpoint = v
	}
	if v, err := strconv.ParseFloat(env["arena_trace_sample_rate"], 64); err == nil {
		c.Telemetry.SampleRate = v
	}
}

// BuildArenas validates the arena definitions and converts them into domain values.
func (c *Config) BuildArenas() ([]*domain.Arena, error) {
	seen := make(map[string]bool, len(c.Arenas))
	out := make([]*domain.Arena, 0, len(c.Arenas))
	for i, ac := range c.Arenas {
		a, err := ac.build()
		if err != nil {
			return nil, eris.Wrapf(err, "arena #%d", i+1)
		}
		if seen[a.Name] {
			return nil, eris.Errorf("arena %q defined twice", a.Name)
		}
		seen[a.Name] = true
		out = append(out, a)
	}
	return out, nil
}

var knownPhases = map[domain.PhaseType]bool{
	domain.PhaseWaiting:   true,
	domain.PhaseCountdown: true,
	domain.PhaseInGame:    true,
	domain.PhaseVictory:   true,
}

func (ac ArenaConfig) build() (*domain.Arena, error) {
	if ac.Name == "" {
		return nil, eris.New("name is required")
	}
	t := ac.Teams
	if t.MinTeams < 1 || t.MaxTeams < t.MinTeams {
		return nil, eris.Errorf("%s: team count bounds %d..%d are invalid", ac.Name, t.MinTeams, t.MaxTeams)
	}
	if t.MaxTeamSize < 1 || t.MinTeamSize < 0 || t.MinTeamSize > t.MaxTeamSize {
		return nil, eris.Errorf("%s: team size bounds %d..%d are invalid", ac.Name, t.MinTeamSize, t.MaxTeamSize)
	}
	selection := domain.TeamSelection(t.Selection)
	switch selection {
	case "":
		selection = domain.TeamSelectionRandom
	case domain.TeamSelectionNone, domain.TeamSelectionRandom:
	default:
		return nil, eris.Errorf("%s: unknown team selection %q", ac.Name, t.Selection)
	}

	a := &domain.Arena{
		Name: ac.Name,
		Teams: domain.TeamOptions{
			Selection:   selection,
			Names:       t.Names,
			MinTeams:    t.MinTeams,
			MaxTeams:    t.MaxTeams,
			MinTeamSize: t.MinTeamSize,
			MaxTeamSize: t.MaxTeamSize,
		},
		InitialPhase: domain.PhaseType(ac.InitialPhase),
		MaxPlayers:   ac.MaxPlayers,
		OnDemand:     ac.OnDemand,
	}
	for _, p := range ac.Phases {
		pt := domain.PhaseType(p.Type)
		if !knownPhases[pt] {
			return nil, eris.Errorf("%s: unknown phase type %q", ac.Name, p.Type)
		}
		if _, dup := a.Phase(pt); dup {
			return nil, eris.Errorf("%s: phase %q defined twice", ac.Name, p.Type)
		}
		a.Phases = append(a.Phases, domain.PhaseDef{
			Type:          pt,
			Next:          domain.PhaseType(p.Next),
			AllowJoin:     p.AllowJoin,
			AllowSpectate: p.AllowSpectate,
			Duration:      p.Duration,
		})
	}
	if a.InitialPhase == "" && len(a.Phases) > 0 {
		a.InitialPhase = a.Phases[0].Type
	}
	if _, ok := a.Phase(a.InitialPhase); !ok {
		return nil, eris.Errorf("%s: initial phase %q is not defined", ac.Name, a.InitialPhase)
	}
	for _, p := range a.Phases {
		if p.Next == "" {
			continue
		}
		if _, ok := a.Phase(p.Next); !ok {
			return nil, eris.Errorf("%s: phase %q continues to undefined phase %q", ac.Name, p.Type, p.Next)
		}
	}

	if len(ac.Maps) == 0 {
		return nil, eris.Errorf("%s: at least one map is required", ac.Name)
	}
	for _, m := range ac.Maps {
		mt := domain.MapType(m.Type)
		switch mt {
		case "":
			mt = domain.MapStatic
		case domain.MapStatic, domain.MapDynamic:
		default:
			return nil, eris.Errorf("%s: map %q has unknown type %q", ac.Name, m.Name, m.Type)
		}
		if m.Name == "" {
			return nil, eris.Errorf("%s: map name is required", ac.Name)
		}
		a.Maps = append(a.Maps, domain.MapDef{Name: m.Name, Type: mt})
	}
	return a, nil
}
