package etl

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/vantagehq/vantage/pkg/metrics"
	"github.com/vantagehq/vantage/pkg/types"
)

// progressInterval is how many records pass between progress callbacks
const progressInterval = 10000

// RecordSink consumes normalized records from the parser. The parser awaits
// each Add before pulling more bytes, so a sink that blocks on a flush
// applies backpressure all the way to the input stream.
type RecordSink interface {
	Add(ctx context.Context, rec types.NormalizedRecord) error
}

// Parser is a streaming, event-driven XML reader over the ABR bulk extract.
// It never builds a document tree; memory usage is bounded by the largest
// single record.
type Parser struct {
	dec  *xml.Decoder
	sink RecordSink

	// OnProgress, when set, is called with the processed count every
	// progressInterval records
	OnProgress func(processed int64)

	stack                []string
	currentText          strings.Builder
	currentRecord        *types.RawRecord
	currentOtherNameType string
	processed            int64
}

// NewParser creates a parser reading from r and feeding sink
func NewParser(r io.Reader, sink RecordSink) *Parser {
	return &Parser{
		dec:  xml.NewDecoder(r),
		sink: sink,
	}
}

// Processed returns the number of records handed to the sink so far
func (p *Parser) Processed() int64 {
	return p.processed
}

// Parse consumes the stream until EOF, handing each complete record to the
// sink. Records without an ABN are discarded silently.
func (p *Parser) Parse(ctx context.Context) (int64, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return p.processed, nil
		}
		if err != nil {
			return p.processed, fmt.Errorf("xml parse error after %d records: %w", p.processed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			p.handleOpen(t)
		case xml.CharData:
			p.currentText.Write(t)
		case xml.EndElement:
			if err := p.handleClose(ctx, t); err != nil {
				return p.processed, err
			}
		}
	}
}

func (p *Parser) handleOpen(se xml.StartElement) {
	name := se.Name.Local
	p.stack = append(p.stack, name)
	p.currentText.Reset()

	switch name {
	case "ABR":
		p.currentRecord = &types.RawRecord{
			RecordLastUpdated: attr(se, "recordLastUpdatedDate"),
		}
	case "ABN":
		if p.currentRecord != nil {
			p.currentRecord.ABNStatus = attr(se, "status")
			p.currentRecord.ABNStatusFrom = attr(se, "ABNStatusFromDate")
		}
	case "GST":
		if p.currentRecord != nil {
			p.currentRecord.GSTStatus = attr(se, "status")
			p.currentRecord.GSTFromDate = attr(se, "GSTStatusFromDate")
		}
	case "NonIndividualName":
		if parent := p.parent(); parent == "OtherEntity" || parent == "DGR" {
			p.currentOtherNameType = attr(se, "type")
		}
	}
}

func (p *Parser) handleClose(ctx context.Context, ee xml.EndElement) error {
	name := ee.Name.Local
	text := strings.TrimSpace(p.currentText.String())

	if p.currentRecord != nil {
		rec := p.currentRecord
		switch name {
		case "ABN":
			rec.ABN = text
		case "EntityTypeInd":
			rec.EntityTypeCode = text
		case "EntityTypeText":
			rec.EntityTypeText = text
		case "NonIndividualNameText":
			// The same tag means a primary or an alternate name depending
			// on the grandparent element.
			switch p.grandparent() {
			case "MainEntity":
				rec.MainEntityName = text
			case "OtherEntity", "DGR":
				rec.OtherNames = append(rec.OtherNames, types.RawName{
					NameType: p.currentOtherNameType,
					NameText: text,
				})
			}
		case "GivenName":
			rec.GivenNames = append(rec.GivenNames, text)
		case "FamilyName":
			rec.FamilyName = text
		case "State":
			rec.State = text
		case "Postcode":
			rec.Postcode = text
		case "ASICNumber":
			rec.ACN = text
		case "ABR":
			if err := p.finishRecord(ctx); err != nil {
				return err
			}
		}
	}

	if len(p.stack) > 0 {
		p.stack = p.stack[:len(p.stack)-1]
	}
	p.currentText.Reset()
	return nil
}

// finishRecord normalizes the completed record and hands it to the sink.
// The pull decoder does not read further bytes until Add returns, so the
// sink's buffer never grows past its flush threshold.
func (p *Parser) finishRecord(ctx context.Context) error {
	rec := *p.currentRecord
	p.currentRecord = nil

	if rec.ABN == "" {
		return nil
	}

	if err := p.sink.Add(ctx, Normalize(rec)); err != nil {
		return fmt.Errorf("record %d (abn %s): %w", p.processed+1, rec.ABN, err)
	}

	p.processed++
	metrics.IngestRecordsProcessed.Inc()
	if p.OnProgress != nil && p.processed%progressInterval == 0 {
		p.OnProgress(p.processed)
	}
	return nil
}

// parent is the element enclosing the one currently open
func (p *Parser) parent() string {
	if len(p.stack) < 2 {
		return ""
	}
	return p.stack[len(p.stack)-2]
}

// grandparent is two levels above the element currently closing
func (p *Parser) grandparent() string {
	if len(p.stack) < 3 {
		return ""
	}
	return p.stack[len(p.stack)-3]
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
