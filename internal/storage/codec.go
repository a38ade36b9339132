package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"agentevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeChromosome(c *model.AgentChromosome) ([]byte, error) {
	if c == nil {
		return nil, errors.New("chromosome is required")
	}
	return json.Marshal(c)
}

func DecodeChromosome(data []byte) (*model.AgentChromosome, error) {
	var c model.AgentChromosome
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := checkVersion(c.VersionedRecord); err != nil {
		return nil, fmt.Errorf("chromosome %s: %w", c.ID, err)
	}
	return &c, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}

func EncodeGenerationHistory(history []model.GenerationStatistics) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeGenerationHistory(data []byte) ([]model.GenerationStatistics, error) {
	var history []model.GenerationStatistics
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// sortRuns orders runs oldest first, breaking ties by id.
func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
