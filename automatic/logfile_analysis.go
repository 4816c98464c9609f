package automatic

import (
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadGameLog reads the game records of a log written by Play.
func ReadGameLog(r io.Reader) ([]*GameRecord, error) {
	dec := yaml.NewDecoder(r)
	var recs []*GameRecord
	for {
		rec := &GameRecord{}
		err := dec.Decode(rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

// AnalyzeLogFile summarizes a game log file.
func AnalyzeLogFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadGameLog(f)
	if err != nil {
		return nil, err
	}
	summary := &Summary{}
	for _, rec := range recs {
		summary.add(rec)
		summary.Elapsed += secondsToDuration(rec.Seconds)
	}
	return summary, nil
}
