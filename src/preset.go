package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:	Named frequency presets from a YAML file.
 *
 * Description:	For maximum flexibility the preset file is read at run
 *		time rather than compiled in.  Absence is not an error;
 *		asking for a preset that is not there is.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type preset_entry_s struct {
	Name  string  `yaml:"name"`
	Freqs []int64 `yaml:"freqs"`
}

type preset_file_s struct {
	Presets []preset_entry_s `yaml:"presets"`
}

var preset_search_locations = []string{
	"presets.yaml", // Current working directory
	"/usr/local/share/borzoi/presets.yaml",
	"/usr/share/borzoi/presets.yaml",
}

/*-------------------------------------------------------------------
 *
 * Name:        preset_load
 *
 * Purpose:	Find the preset file (explicit path first, then the
 *		search list) and return the frequency list for a name.
 *
 *--------------------------------------------------------------------*/

func preset_load(path string, name string) ([]int64, error) {

	var locations = preset_search_locations
	if path != "" {
		locations = []string{path}
	}

	var data []byte
	var readErr error
	for _, loc := range locations {
		data, readErr = os.ReadFile(loc)
		if readErr == nil {
			break
		}
	}
	if readErr != nil {
		return nil, fmt.Errorf("no preset file found: %w", readErr)
	}

	var pf preset_file_s
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("preset file: %w", err)
	}

	for _, p := range pf.Presets {
		if p.Name == name {
			if len(p.Freqs) == 0 {
				return nil, fmt.Errorf("preset %q has no frequencies", name)
			}
			if len(p.Freqs) > MAX_FREQS {
				return nil, fmt.Errorf("preset %q: %w", name, ErrTooManyChannels)
			}
			return p.Freqs, nil
		}
	}

	return nil, fmt.Errorf("preset %q not found", name)
}

// PresetLoad is the cmd-facing wrapper.
func PresetLoad(path string, name string) ([]int64, error) {
	return preset_load(path, name)
}

/* end preset.go */
