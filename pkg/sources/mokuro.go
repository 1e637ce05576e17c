package sources

import (
	"encoding/json"
	"errors"
	"os"
)

const SourceMokuro = "Mokuro volume-data.json"

// ReadMangaChars sums the chars field of every volume in a Mokuro
// volume-data.json file. Volumes without a numeric chars field are skipped.
func ReadMangaChars(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, newReadError(SourceMokuro, path, err)
	}
	var volumes map[string]json.RawMessage
	if err := json.Unmarshal(b, &volumes); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return 0, &ReadError{Source: SourceMokuro, Path: path, Kind: Schema, Err: errors.New("not a JSON object")}
		}
		return 0, &ReadError{Source: SourceMokuro, Path: path, Kind: Unreadable, Err: err}
	}

	var total int64
	for _, raw := range volumes {
		var vol struct {
			Chars any `json:"chars"`
		}
		if err := json.Unmarshal(raw, &vol); err != nil {
			continue
		}
		if f, ok := vol.Chars.(float64); ok {
			total += int64(f)
		}
	}
	return total, nil
}
