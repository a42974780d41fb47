package trth

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/plugaai/trth_downloader/internal/logctx"
)

const listingColumns = 4 // type, name, size, date

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
}

// Catalog turns the HTTP-pull listing into RemoteFile records.
type Catalog struct {
	client ResultClient
}

func NewCatalog(client ResultClient) *Catalog {
	return &Catalog{client: client}
}

// List fetches and parses the listing. Entries whose name cannot be decoded
// are skipped; any other problem is a *ListingError.
func (c *Catalog) List(ctx context.Context) ([]*RemoteFile, error) {
	body, err := c.client.ListResults(ctx)
	if err != nil {
		return nil, &ListingError{Reason: "listing endpoint unavailable", Err: err}
	}

	return ParseListing(ctx, bytes.NewReader(body))
}

// ParseListing parses a CSV listing with a header row and the positional
// columns type, name, size and date.
func ParseListing(ctx context.Context, r io.Reader) ([]*RemoteFile, error) {
	logger := logctx.LoggerFromContext(ctx)

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = listingColumns
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ListingError{Reason: "empty listing"}
		}

		return nil, &ListingError{Reason: "malformed header", Err: err}
	}

	var files []*RemoteFile

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, &ListingError{Reason: "malformed record", Err: err}
		}

		name := strings.TrimSpace(record[1])

		requestID, partType, err := DecodeName(name)
		if err != nil {
			logger.DebugContext(ctx, "skipping unrecognised listing entry", "file_name", name, "err", err)

			continue
		}

		size, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return nil, &ListingError{Reason: fmt.Sprintf("invalid size for %s", name), Err: err}
		}

		date, err := parseDate(record[3])
		if err != nil {
			return nil, &ListingError{Reason: fmt.Sprintf("invalid date for %s", name), Err: err}
		}

		files = append(files, &RemoteFile{
			Name:      name,
			RequestID: requestID,
			PartType:  partType,
			Size:      size,
			Date:      date,
		})
	}

	logger.DebugContext(ctx, "parsed result listing", "file_count", len(files))

	return files, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported date format %q", s)
}
