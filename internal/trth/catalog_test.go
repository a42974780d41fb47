package trth

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResultClient struct {
	listing []byte
	err     error
}

func (s *stubResultClient) ListResults(context.Context) ([]byte, error) {
	return s.listing, s.err
}

func (s *stubResultClient) OpenFile(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

const sampleListing = `Type,Name,Size,Date
file,user-ric-N000000001-part000.csv,100,2016-03-01 10:00:00
file,user-ric-N000000001-report.csv,50,2016-03-01 10:00:05
file,notes.txt,12,2016-03-01 10:01:00
file,other-N000000002.txt,7,2016-03-02T08:30:00Z
`

func TestParseListing(t *testing.T) {
	files, err := ParseListing(context.Background(), strings.NewReader(sampleListing))
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "user-ric-N000000001-part000.csv", files[0].Name)
	assert.Equal(t, "N000000001", files[0].RequestID)
	assert.Equal(t, "part000", files[0].PartType)
	assert.Equal(t, uint64(100), files[0].Size)
	assert.Equal(t, time.Date(2016, 3, 1, 10, 0, 0, 0, time.UTC), files[0].Date)

	assert.Equal(t, "report", files[1].PartType)
	assert.True(t, files[1].IsReport())

	assert.Equal(t, "N000000002", files[2].RequestID)
	assert.Equal(t, DefaultPartType, files[2].PartType)
	assert.Equal(t, time.Date(2016, 3, 2, 8, 30, 0, 0, time.UTC), files[2].Date)
}

func TestParseListing_HeaderOnly(t *testing.T) {
	files, err := ParseListing(context.Background(), strings.NewReader("type,name,size,date\n"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParseListing_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		listing string
	}{
		{"empty", ""},
		{"wrong column count", "type,name,size,date\nfile,a-N000000001.csv,10\n"},
		{"bad size", "type,name,size,date\nfile,a-N000000001.csv,ten,2016-03-01\n"},
		{"bad date", "type,name,size,date\nfile,a-N000000001.csv,10,yesterday\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseListing(context.Background(), strings.NewReader(tt.listing))

			var listingErr *ListingError
			require.ErrorAs(t, err, &listingErr)
		})
	}
}

func TestCatalog_List(t *testing.T) {
	catalog := NewCatalog(&stubResultClient{listing: []byte(sampleListing)})

	files, err := catalog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)

	// endpoint order is kept
	assert.Equal(t, []string{
		"user-ric-N000000001-part000.csv",
		"user-ric-N000000001-report.csv",
		"other-N000000002.txt",
	}, []string{files[0].Name, files[1].Name, files[2].Name})
}

func TestCatalog_List_EndpointFailure(t *testing.T) {
	cause := &NetworkError{Operation: "list", StatusCode: 503, Message: "unavailable"}
	catalog := NewCatalog(&stubResultClient{err: cause})

	_, err := catalog.List(context.Background())

	var listingErr *ListingError
	require.ErrorAs(t, err, &listingErr)
	assert.ErrorIs(t, err, cause)
}
