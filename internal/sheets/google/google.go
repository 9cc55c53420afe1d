package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cashbook/internal/log"
	ports "cashbook/internal/sheets"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Ensure interface conformance
var (
	_ ports.SettlementWriter = (*Client)(nil)
	_ ports.SettlementLister = (*Client)(nil)
)

// Config locates the spreadsheet and the service account used to write it.
// CredentialsJSON wins over CredentialsFile when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	credentialsJSON, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger)
}

// NewWithService wraps an existing service, for callers that build their own
// transport.
func NewWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Settlements"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE)")
}

// AppendSettlement appends the rows of e unless its id is already present in
// the first column. The header row is written first on an empty sheet.
func (c *Client) AppendSettlement(ctx context.Context, e ports.SettlementExport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.SettlementID == uuid.Nil {
		return "", errors.New("settlement id is required")
	}

	existing, err := c.firstColumn(ctx)
	if err != nil {
		return "", err
	}
	if ports.SettlementIDs(existing)[e.SettlementID] {
		c.logger.InfoContext(ctx, "Settlement already exported", log.FieldSettlementID, e.SettlementID.String())
		return c.sheetName, nil
	}

	rows := ports.Rows(e)
	if len(existing) == 0 {
		rows = append([][]any{ports.Header}, rows...)
	}
	rng := fmt.Sprintf("%s!A:J", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheetName, err)
	}

	ref := c.sheetName
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Exported settlement",
		log.FieldSettlementID, e.SettlementID.String(),
		log.FieldDebtCount, len(e.Debts),
		"range", ref)
	return ref, nil
}

func (c *Client) ExportedSettlements(ctx context.Context) (map[uuid.UUID]bool, error) {
	values, err := c.firstColumn(ctx)
	if err != nil {
		return nil, err
	}
	return ports.SettlementIDs(values), nil
}

func (c *Client) firstColumn(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}
