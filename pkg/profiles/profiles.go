// Package profiles provides pre-defined link settings for the bluebox.
// Each profile is a complete config.Settings for a band, data rate and
// modulation index combination known to have a clock solution on the
// 16 MHz reference.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flynn/json5"

	"github.com/herlein/bluebox/pkg/adf7021"
	"github.com/herlein/bluebox/pkg/config"
)

// Profile is a named set of link settings
type Profile struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Settings    config.Settings `json:"settings"`
}

// ProfileConfig is the JSON format for storing profiles. The clock plan
// is informational and recomputed on load.
type ProfileConfig struct {
	Profile   Profile           `json:"profile"`
	Clocks    adf7021.ClockPlan `json:"clocks"`
	Timestamp time.Time         `json:"timestamp"`
}

// base returns the defaults with the link parameters replaced
func base(freqHz uint32, bitrate uint16, modIndex uint8) config.Settings {
	s := config.Default()
	s.RxFreq = freqHz
	s.TxFreq = freqHz
	s.Bitrate = bitrate
	s.ModIndex = modIndex
	return s
}

// ifBandwidthFor picks the narrowest IF filter holding the signal
// (Carson bandwidth of data rate times index plus one)
func ifBandwidthFor(bitrate uint16, modIndex uint8) uint8 {
	carson := float64(bitrate) * (float64(modIndex) + 1)
	switch {
	case carson <= 12500:
		return 0
	case carson <= 18750:
		return 1
	default:
		return 2
	}
}

// formatDataRate formats a data rate for use in profile names
func formatDataRate(rate uint16) string {
	if rate >= 1000 {
		k := float64(rate) / 1000
		if k == float64(int(k)) {
			return fmt.Sprintf("%.0fk", k)
		}
		return fmt.Sprintf("%.1fk", k)
	}
	return fmt.Sprintf("%d", rate)
}

// Plan computes the clock plan for the profile
func (p *Profile) Plan() (adf7021.ClockPlan, error) {
	return adf7021.PlanClocks(p.Settings.XtalHz, uint32(p.Settings.Bitrate), p.Settings.ModIndex)
}

// SaveToFile saves a profile to a JSON file
func (p *Profile) SaveToFile(path string) error {
	plan, err := p.Plan()
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	cfg := ProfileConfig{
		Profile:   *p,
		Clocks:    plan,
		Timestamp: time.Now(),
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// LoadProfileFromFile loads a profile from a JSON or JSON5 file
func LoadProfileFromFile(path string) (*ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var cfg ProfileConfig
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if err := cfg.Profile.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", cfg.Profile.Name, err)
	}
	if cfg.Clocks, err = cfg.Profile.Plan(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EnsureDir ensures the directory for a file path exists
func EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0755)
}

// All returns every built-in profile sorted by name
func All() []*Profile {
	var all []*Profile
	all = append(all, AmateurProfiles()...)
	all = append(all, ISMProfiles()...)
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// ByName returns the named built-in profile
func ByName(name string) (*Profile, error) {
	for _, p := range All() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown profile %q", name)
}

// Generate writes each profile to basePath/<name>.json
func Generate(basePath string, profiles []*Profile) error {
	if err := EnsureDir(filepath.Join(basePath, "dummy")); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for _, p := range profiles {
		filename := filepath.Join(basePath, p.Name+".json")
		if err := p.SaveToFile(filename); err != nil {
			return fmt.Errorf("failed to save profile %s: %w", p.Name, err)
		}
	}

	return nil
}
