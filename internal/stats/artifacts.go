// Package stats writes per-run artifact directories and the run index that
// lists them.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"agentevo/internal/model"
	"agentevo/internal/storage"
)

const runIndexFile = "run_index.json"

var artifactFiles = []string{"config.json", "result.json", "best.json", "history.csv"}

var historyHeader = []string{
	"generation",
	"size",
	"average_fitness",
	"best_fitness",
	"worst_fitness",
	"diversity",
	"best_ever_fitness",
	"stagnation_count",
	"species_count",
	"distinct_configurations",
	"missing_results",
}

type RunConfig struct {
	RunID         string                `json:"run_id"`
	Evaluator     string                `json:"evaluator"`
	Selector      string                `json:"selector,omitempty"`
	Postprocessor string                `json:"postprocessor,omitempty"`
	Evolution     model.EvolutionConfig `json:"evolution"`
}

// ResultSummary is result.json: the run outcome without the history and
// best chromosome, which get their own files.
type ResultSummary struct {
	RunID             string                `json:"run_id"`
	BestChromosomeID  string                `json:"best_chromosome_id,omitempty"`
	BestFitness       float64               `json:"best_fitness"`
	FinalGeneration   int                   `json:"final_generation"`
	Termination       model.TerminationKind `json:"termination"`
	TerminationReason string                `json:"termination_reason"`
	DurationMS        int64                 `json:"duration_ms"`
}

type RunArtifacts struct {
	Config    RunConfig
	Result    model.EvolutionResult
	CreatedAt time.Time
}

type RunIndexEntry struct {
	RunID           string                `json:"run_id"`
	Evaluator       string                `json:"evaluator"`
	PopulationSize  int                   `json:"population_size"`
	Seed            int64                 `json:"seed"`
	FinalGeneration int                   `json:"final_generation"`
	BestFitness     float64               `json:"best_fitness"`
	Termination     model.TerminationKind `json:"termination"`
	CreatedAtUTC    string                `json:"created_at_utc"`
}

// WriteRunArtifacts writes <baseDir>/<run id>/ and upserts the run into the
// index. It returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Config.RunID)
	if runID == "" {
		runID = artifacts.Result.RunID
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	artifacts.Config.RunID = runID

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	result := artifacts.Result
	summary := ResultSummary{
		RunID:             runID,
		BestFitness:       result.BestFitness,
		FinalGeneration:   result.FinalGeneration,
		Termination:       result.Termination,
		TerminationReason: result.TerminationReason,
		DurationMS:        result.Duration.Milliseconds(),
	}
	if result.Best != nil {
		summary.BestChromosomeID = result.Best.ID
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "result.json"), summary); err != nil {
		return "", err
	}
	if result.Best != nil {
		data, err := storage.EncodeChromosome(result.Best)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(runDir, "best.json"), append(data, '\n'), 0o644); err != nil {
			return "", err
		}
	}
	if err := writeHistoryCSV(filepath.Join(runDir, "history.csv"), result.GenerationHistory); err != nil {
		return "", err
	}

	createdAt := artifacts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	entry := RunIndexEntry{
		RunID:           runID,
		Evaluator:       artifacts.Config.Evaluator,
		PopulationSize:  artifacts.Config.Evolution.PopulationSize,
		Seed:            artifacts.Config.Evolution.Seed,
		FinalGeneration: result.FinalGeneration,
		BestFitness:     result.BestFitness,
		Termination:     result.Termination,
		CreatedAtUTC:    createdAt.UTC().Format(time.RFC3339Nano),
	}
	if err := AppendRunIndex(baseDir, entry); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readIndexFile(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ReadRunIndex lists indexed runs newest first. A missing index is empty.
func ReadRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readIndexFile(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readIndexFile(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode run index: %w", err)
	}
	return entries, nil
}

// ExportRunArtifacts copies a run directory to <outDir>/<run id>. best.json
// is optional since runs cancelled before generation 1 have no best.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range artifactFiles {
		err := copyFile(filepath.Join(src, file), filepath.Join(dst, file))
		if err != nil {
			if file == "best.json" && os.IsNotExist(err) {
				continue
			}
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}
	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadResultSummary(baseDir, runID string) (ResultSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "result.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return ResultSummary{}, false, nil
		}
		return ResultSummary{}, false, err
	}
	var summary ResultSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return ResultSummary{}, false, err
	}
	return summary, true, nil
}

func ReadBestChromosome(baseDir, runID string) (*model.AgentChromosome, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "best.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	c, err := storage.DecodeChromosome(data)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func writeHistoryCSV(path string, history []model.GenerationStatistics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(historyHeader); err != nil {
		return err
	}
	for _, gen := range history {
		if err := writer.Write([]string{
			strconv.Itoa(gen.Generation),
			strconv.Itoa(gen.Population.Size),
			formatFloat(gen.Population.AverageFitness),
			formatFloat(gen.Population.BestFitness),
			formatFloat(gen.Population.WorstFitness),
			formatFloat(gen.Population.Diversity),
			formatFloat(gen.BestEverFitness),
			strconv.Itoa(gen.StagnationCount),
			strconv.Itoa(gen.SpeciesCount),
			strconv.Itoa(gen.DistinctConfigurations),
			strconv.Itoa(gen.MissingResults),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadHistory parses history.csv back into generation statistics.
func ReadHistory(baseDir, runID string) ([]model.GenerationStatistics, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "history.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationStatistics{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(historyHeader) {
		return nil, false, fmt.Errorf("history header must have %d columns, got %d", len(historyHeader), len(header))
	}

	history := make([]model.GenerationStatistics, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		gen, err := parseHistoryRow(record)
		if err != nil {
			return nil, false, fmt.Errorf("history row %d: %w", len(history)+1, err)
		}
		history = append(history, gen)
	}
	return history, true, nil
}

func parseHistoryRow(record []string) (model.GenerationStatistics, error) {
	ints := make([]int, 0, 6)
	floats := make([]float64, 0, 5)
	for i, field := range record {
		switch i {
		case 0, 1, 7, 8, 9, 10:
			v, err := strconv.Atoi(field)
			if err != nil {
				return model.GenerationStatistics{}, fmt.Errorf("%s: %w", historyHeader[i], err)
			}
			ints = append(ints, v)
		default:
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return model.GenerationStatistics{}, fmt.Errorf("%s: %w", historyHeader[i], err)
			}
			floats = append(floats, v)
		}
	}
	return model.GenerationStatistics{
		Generation: ints[0],
		Population: model.PopulationStatistics{
			Size:           ints[1],
			AverageFitness: floats[0],
			BestFitness:    floats[1],
			WorstFitness:   floats[2],
			Diversity:      floats[3],
		},
		BestEverFitness:        floats[4],
		StagnationCount:        ints[2],
		SpeciesCount:           ints[3],
		DistinctConfigurations: ints[4],
		MissingResults:         ints[5],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
