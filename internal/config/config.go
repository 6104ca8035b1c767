package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/navgrid/internal/navgrid"
)

// Engine holds all configuration for the occupancy grid engine.
type Engine struct {
	LogLevel string `yaml:"log_level"`

	// Rasterization
	CellSize                float64 `yaml:"cell_size"`
	AgentRadius             float64 `yaml:"agent_radius"`
	AgentHeight             float64 `yaml:"agent_height"`
	ObstacleMask            uint32  `yaml:"obstacle_mask"`
	FitToTerrain            bool    `yaml:"fit_to_terrain"`
	MaxWalkableSlopeDegrees float64 `yaml:"max_walkable_slope_degrees"`

	// Path search
	AllowDiagonals   bool `yaml:"allow_diagonals"`
	MaxExpandedNodes int  `yaml:"max_expanded_nodes"` // 0 = unlimited
	ReturnBestEffort bool `yaml:"return_best_effort"`
	SmoothPaths      bool `yaml:"smooth_paths"`

	// Rebuild policy
	RebuildDebounce     time.Duration `yaml:"rebuild_debounce"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	AutoDiscoverVolumes bool          `yaml:"auto_discover_volumes"`

	// Database (exclusion volume persistence)
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultEngine returns Engine config with sensible defaults.
func DefaultEngine() Engine {
	return Engine{
		LogLevel:                "info",
		CellSize:                0.5,
		AgentRadius:             0.3,
		AgentHeight:             1.8,
		ObstacleMask:            0xFFFFFFFF,
		FitToTerrain:            false,
		MaxWalkableSlopeDegrees: 45,
		AllowDiagonals:          true,
		MaxExpandedNodes:        20000,
		ReturnBestEffort:        false,
		SmoothPaths:             false,
		RebuildDebounce:         250 * time.Millisecond,
		TickInterval:            100 * time.Millisecond,
		AutoDiscoverVolumes:     true,
		Database: DatabaseConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "navgrid",
			Password: "navgrid",
			DBName:   "navgrid",
			SSLMode:  "disable",
		},
	}
}

// LoadEngine loads engine config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate clamps recoverable values and rejects the rest.
func (e *Engine) Validate() error {
	e.CellSize = navgrid.ClampCellSize(e.CellSize)
	if e.TickInterval <= 0 {
		e.TickInterval = DefaultEngine().TickInterval
	}
	if e.RebuildDebounce < 0 {
		e.RebuildDebounce = 0
	}

	var errs []error
	if e.AgentRadius < 0 {
		errs = append(errs, fmt.Errorf("agent_radius must not be negative, got %v", e.AgentRadius))
	}
	if e.AgentHeight < 0 {
		errs = append(errs, fmt.Errorf("agent_height must not be negative, got %v", e.AgentHeight))
	}
	if e.MaxWalkableSlopeDegrees < 0 || e.MaxWalkableSlopeDegrees >= 90 {
		errs = append(errs, fmt.Errorf("max_walkable_slope_degrees must be in [0, 90), got %v", e.MaxWalkableSlopeDegrees))
	}
	if e.MaxExpandedNodes < 0 {
		errs = append(errs, fmt.Errorf("max_expanded_nodes must not be negative, got %d", e.MaxExpandedNodes))
	}
	return errors.Join(errs...)
}

// Settings returns the path search settings.
func (e Engine) Settings() navgrid.Settings {
	return navgrid.Settings{
		AllowDiagonals:   e.AllowDiagonals,
		MaxExpandedNodes: e.MaxExpandedNodes,
		ReturnBestEffort: e.ReturnBestEffort,
		SmoothPaths:      e.SmoothPaths,
	}
}

// Coordinator builds a coordinator config for the given world volume and
// collaborators.
func (e Engine) Coordinator(volume navgrid.Volume, collider navgrid.Collider, terrain []navgrid.HeightProvider) navgrid.CoordinatorConfig {
	return navgrid.CoordinatorConfig{
		Raster: navgrid.Rasterizer{
			Volume:          volume,
			CellSize:        e.CellSize,
			AgentRadius:     e.AgentRadius,
			AgentHeight:     e.AgentHeight,
			ObstacleMask:    e.ObstacleMask,
			FitToTerrain:    e.FitToTerrain,
			MaxSlopeDegrees: e.MaxWalkableSlopeDegrees,
			Collider:        collider,
			Terrain:         terrain,
		},
		Search:       e.Settings(),
		Debounce:     e.RebuildDebounce,
		AutoDiscover: e.AutoDiscoverVolumes,
	}
}
