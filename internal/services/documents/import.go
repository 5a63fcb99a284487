package documents

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// HoldingsFile is the structured import format. Either Holdings (for the
// user given on the command line) or Users (keyed by user ID) may be set.
//
//	holdings:
//	  AAPL: 10
//	users:
//	  alice@example.com:
//	    MSFT: 5
type HoldingsFile struct {
	Holdings map[string]float64            `yaml:"holdings" toml:"holdings"`
	Users    map[string]map[string]float64 `yaml:"users" toml:"users"`
}

// ParseHoldingsFile parses YAML, TOML or CSV holdings into per-user holdings.
// CSV rows are "ticker,shares" or "user,ticker,shares"; a header row is skipped.
func ParseHoldingsFile(data []byte, format, defaultUser string) (map[string]models.Holdings, error) {
	var file HoldingsFile

	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML holdings: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML holdings: %w", err)
		}
	case "csv":
		return parseHoldingsCSV(data, defaultUser)
	default:
		return nil, fmt.Errorf("unsupported holdings file format: %q", format)
	}

	result := make(map[string]models.Holdings)
	if len(file.Holdings) > 0 {
		if defaultUser == "" {
			return nil, fmt.Errorf("holdings without a user: pass a user ID or use the users table")
		}
		addHoldings(result, defaultUser, file.Holdings)
	}
	for userID, holdings := range file.Users {
		addHoldings(result, userID, holdings)
	}

	return finishImport(result)
}

func parseHoldingsCSV(data []byte, defaultUser string) (map[string]models.Holdings, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV holdings: %w", err)
	}

	result := make(map[string]models.Holdings)
	for i, record := range records {
		var userID, ticker, sharesStr string
		switch len(record) {
		case 2:
			userID, ticker, sharesStr = defaultUser, record[0], record[1]
		case 3:
			userID, ticker, sharesStr = strings.TrimSpace(record[0]), record[1], record[2]
		default:
			return nil, fmt.Errorf("CSV row %d: expected 2 or 3 columns, got %d", i+1, len(record))
		}

		shares, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(sharesStr), ",", ""), 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("CSV row %d: invalid shares %q", i+1, sharesStr)
		}
		if userID == "" {
			return nil, fmt.Errorf("CSV row %d: holdings without a user", i+1)
		}
		addHoldings(result, userID, map[string]float64{ticker: shares})
	}

	return finishImport(result)
}

func addHoldings(result map[string]models.Holdings, userID string, holdings map[string]float64) {
	userID = strings.TrimSpace(userID)
	if result[userID] == nil {
		result[userID] = make(models.Holdings)
	}
	for ticker, shares := range holdings {
		if t := common.Clean(ticker); t != "" {
			result[userID][t] += shares
		}
	}
}

func finishImport(result map[string]models.Holdings) (map[string]models.Holdings, error) {
	for userID, holdings := range result {
		if err := holdings.Validate(); err != nil {
			return nil, fmt.Errorf("user %s: %w", userID, err)
		}
		if len(holdings) == 0 {
			delete(result, userID)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no holdings found")
	}
	return result, nil
}

// Importer loads holdings from structured files or statement documents and stores them
type Importer struct {
	extractor interfaces.DocumentExtractor
	holdings  *HoldingsExtractor
	storage   interfaces.HoldingsStorage
	logger    arbor.ILogger
}

// NewImporter creates a holdings importer. holdings may be nil when no LLM is configured,
// in which case only structured files can be imported.
func NewImporter(extractor interfaces.DocumentExtractor, holdings *HoldingsExtractor, storage interfaces.HoldingsStorage, logger arbor.ILogger) *Importer {
	return &Importer{
		extractor: extractor,
		holdings:  holdings,
		storage:   storage,
		logger:    logger,
	}
}

// ImportFile imports the holdings in path and saves them per user.
// YAML and TOML files, and CSV files in the structured layout, are read directly;
// PDF, HTML, text and other CSV files are extracted to text and read by the LLM.
func (i *Importer) ImportFile(ctx context.Context, path, userID string) (map[string]models.Holdings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	byUser, err := i.parse(ctx, data, ext, userID)
	if err != nil {
		return nil, err
	}

	for user, holdings := range byUser {
		if err := i.storage.SaveHoldings(ctx, user, holdings); err != nil {
			return nil, fmt.Errorf("failed to save holdings for %s: %w", user, err)
		}
		i.logger.Info().
			Str("user_id", user).
			Str("file", filepath.Base(path)).
			Int("holdings", len(holdings)).
			Msg("Holdings imported")
	}

	return byUser, nil
}

func (i *Importer) parse(ctx context.Context, data []byte, ext, userID string) (map[string]models.Holdings, error) {
	switch ext {
	case ".yaml", ".yml", ".toml":
		return ParseHoldingsFile(data, ext, userID)
	case ".csv":
		byUser, err := ParseHoldingsFile(data, ext, userID)
		if err == nil {
			return byUser, nil
		}
		i.logger.Debug().Err(err).Msg("CSV is not in holdings layout, extracting as document")
	}

	if userID == "" {
		return nil, fmt.Errorf("a user ID is required to import a statement document")
	}
	if i.holdings == nil {
		return nil, fmt.Errorf("statement import requires an LLM provider")
	}

	text, err := i.extractor.ExtractText(ctx, data, ext)
	if err != nil {
		return nil, err
	}

	holdings, err := i.holdings.ExtractHoldings(ctx, text)
	if err != nil {
		return nil, err
	}
	return map[string]models.Holdings{userID: holdings}, nil
}
