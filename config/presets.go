package config

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// presetRow is the CSV-shaped form of a named Config, one row per preset.
type presetRow struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	BlockSize         uint   `csv:"block_size"`
	DataBlocks        uint   `csv:"data_blocks"`
	InodeTableSize    uint   `csv:"inode_table_size"`
	MaxOpenFiles      uint   `csv:"max_open_files"`
	MaxFileName       uint   `csv:"max_file_name"`
	DirectBlocksCount uint   `csv:"direct_blocks_count"`
	Notes             string `csv:"notes"`
}

func (row presetRow) toConfig() Config {
	return Config{
		BlockSize:         row.BlockSize,
		DataBlocks:        row.DataBlocks,
		InodeTableSize:    row.InodeTableSize,
		MaxOpenFiles:      row.MaxOpenFiles,
		MaxFileName:       row.MaxFileName,
		DirectBlocksCount: row.DirectBlocksCount,
	}
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Config

func init() {
	presets = make(map[string]Config)

	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row presetRow) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row.toConfig()
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// Preset looks up a named configuration (e.g. "tiny", "default", "large").
func Preset(slug string) (Config, error) {
	cfg, ok := presets[slug]
	if !ok {
		return Config{}, fmt.Errorf("no predefined TFS configuration named %q", slug)
	}
	return cfg, nil
}

// PresetNames returns the slugs of every available preset.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for slug := range presets {
		names = append(names, slug)
	}
	return names
}
