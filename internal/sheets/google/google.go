package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"incomes/internal/ingest"
	ports "incomes/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valueGetter fetches the raw cell matrix of a range.
type valueGetter interface {
	getValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type Client struct {
	values        valueGetter
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.TableReader = (*Client)(nil)

// Credentials selects the service account used for the Sheets API. The
// first non-empty source wins: inline JSON, a key file, then the standard
// GOOGLE_APPLICATION_CREDENTIALS path.
type Credentials struct {
	JSON                   string
	File                   string
	ApplicationCredentials string
}

// New creates a read-only Sheets client for one spreadsheet.
func New(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{values: apiValues{svc: svc}, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials(creds)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsReadonlyScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

func loadCredentials(creds Credentials) ([]byte, error) {
	inline := strings.TrimSpace(creds.JSON)
	file := strings.TrimSpace(creds.File)
	if inline == "" && file == "" {
		file = strings.TrimSpace(creds.ApplicationCredentials)
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ReadTable reads rng (for example "Incomes!A:D") with unformatted values,
// so amounts arrive as numbers and dates as serial numbers.
func (c *Client) ReadTable(ctx context.Context, rng string) (ingest.Table, error) {
	if c.values == nil {
		return ingest.Table{}, errors.New("sheets service not initialized")
	}
	values, err := c.values.getValues(ctx, c.spreadsheetID, rng)
	if err != nil {
		return ingest.Table{}, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseTable(values), nil
}

type apiValues struct {
	svc *gsheet.Service
}

func (a apiValues) getValues(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
