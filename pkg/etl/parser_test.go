package etl

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagehq/vantage/pkg/types"
)

// collectSink gathers normalized records in memory
type collectSink struct {
	records []types.NormalizedRecord
	fail    error
}

func (s *collectSink) Add(ctx context.Context, rec types.NormalizedRecord) error {
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, rec)
	return nil
}

const sampleTransfer = `<?xml version="1.0" encoding="UTF-8"?>
<Transfer>
 <ABR recordLastUpdatedDate="20231105" replaced="N">
  <ABN status="ACT" ABNStatusFromDate="20000301">53004085616</ABN>
  <EntityType>
   <EntityTypeInd>PRV</EntityTypeInd>
   <EntityTypeText>Australian Private Company</EntityTypeText>
  </EntityType>
  <MainEntity>
   <NonIndividualName type="MN">
    <NonIndividualNameText>VANTAGE SEARCH PTY LTD</NonIndividualNameText>
   </NonIndividualName>
   <BusinessAddress>
    <AddressDetails>
     <State>NSW</State>
     <Postcode>2000</Postcode>
    </AddressDetails>
   </BusinessAddress>
  </MainEntity>
  <ASICNumber>004085616</ASICNumber>
  <GST status="ACT" GSTStatusFromDate="20000701"/>
  <OtherEntity>
   <NonIndividualName type="TRD">
    <NonIndividualNameText>VANTAGE DIRECTORY</NonIndividualNameText>
   </NonIndividualName>
  </OtherEntity>
  <DGR>
   <NonIndividualName type="DGR">
    <NonIndividualNameText>VANTAGE FOUNDATION</NonIndividualNameText>
   </NonIndividualName>
  </DGR>
 </ABR>
 <ABR recordLastUpdatedDate="19000101">
  <ABN status="CAN" ABNStatusFromDate="19000101">12345678901</ABN>
  <EntityType>
   <EntityTypeInd>IND</EntityTypeInd>
   <EntityTypeText>Individual/Sole Trader</EntityTypeText>
  </EntityType>
  <LegalEntity>
   <IndividualName type="LGL">
    <GivenName>MARY</GivenName>
    <GivenName>JANE</GivenName>
    <FamilyName>DOE</FamilyName>
   </IndividualName>
   <BusinessAddress>
    <AddressDetails>
     <State>VIC</State>
     <Postcode>3000</Postcode>
    </AddressDetails>
   </BusinessAddress>
  </LegalEntity>
 </ABR>
 <ABR recordLastUpdatedDate="20231105">
  <ABN status="ACT" ABNStatusFromDate="20000301"></ABN>
  <EntityType>
   <EntityTypeInd>PRV</EntityTypeInd>
  </EntityType>
 </ABR>
</Transfer>`

func TestParserFullTransfer(t *testing.T) {
	sink := &collectSink{}
	parser := NewParser(strings.NewReader(sampleTransfer), sink)

	processed, err := parser.Parse(context.Background())
	require.NoError(t, err)

	// The third record has no ABN and is discarded silently
	assert.Equal(t, int64(2), processed)
	require.Len(t, sink.records, 2)

	company := sink.records[0].Business
	assert.Equal(t, "53004085616", company.ABN)
	assert.Equal(t, "ACT", company.ABNStatus)
	assert.Equal(t, "PRV", company.EntityTypeCode)
	assert.Equal(t, "Australian Private Company", company.EntityTypeText)
	assert.Equal(t, "VANTAGE SEARCH PTY LTD", company.EntityName)
	require.NotNil(t, company.State)
	assert.Equal(t, "NSW", *company.State)
	require.NotNil(t, company.Postcode)
	assert.Equal(t, "2000", *company.Postcode)
	require.NotNil(t, company.ACN)
	assert.Equal(t, "004085616", *company.ACN)
	require.NotNil(t, company.GSTStatus)
	assert.Equal(t, "ACT", *company.GSTStatus)
	require.NotNil(t, company.GSTFromDate)
	require.NotNil(t, company.ABNStatusFrom)
	require.NotNil(t, company.RecordLastUpdated)

	// Grandparent disambiguation: MainEntity text is the primary name,
	// OtherEntity and DGR texts are alternates with their captured types
	names := sink.records[0].Names
	require.Len(t, names, 2)
	assert.Equal(t, types.RawName{NameType: "TRD", NameText: "VANTAGE DIRECTORY"}, names[0])
	assert.Equal(t, types.RawName{NameType: "DGR", NameText: "VANTAGE FOUNDATION"}, names[1])

	individual := sink.records[1].Business
	assert.Equal(t, "12345678901", individual.ABN)
	assert.Equal(t, "CAN", individual.ABNStatus)
	assert.Equal(t, "MARY JANE DOE", individual.EntityName)
	require.NotNil(t, individual.GivenName)
	assert.Equal(t, "MARY JANE", *individual.GivenName)
	require.NotNil(t, individual.FamilyName)
	assert.Equal(t, "DOE", *individual.FamilyName)
	// Sentinel dates normalize to null
	assert.Nil(t, individual.ABNStatusFrom)
	assert.Nil(t, individual.RecordLastUpdated)
}

func TestParserCDATAName(t *testing.T) {
	doc := `<Transfer><ABR recordLastUpdatedDate="20231105">
	 <ABN status="ACT" ABNStatusFromDate="20200101">11111111111</ABN>
	 <EntityType><EntityTypeInd>PRV</EntityTypeInd></EntityType>
	 <MainEntity><NonIndividualName type="MN">
	  <NonIndividualNameText><![CDATA[SMITH & SONS PTY LTD]]></NonIndividualNameText>
	 </NonIndividualName></MainEntity>
	</ABR></Transfer>`

	sink := &collectSink{}
	_, err := NewParser(strings.NewReader(doc), sink).Parse(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "SMITH & SONS PTY LTD", sink.records[0].Business.EntityName)
}

func TestParserProgressCallback(t *testing.T) {
	var b strings.Builder
	b.WriteString("<Transfer>")
	for i := 0; i < 2; i++ {
		b.WriteString(`<ABR recordLastUpdatedDate="20231105">`)
		b.WriteString(`<ABN status="ACT" ABNStatusFromDate="20200101">11111111111</ABN>`)
		b.WriteString(`<EntityType><EntityTypeInd>PRV</EntityTypeInd></EntityType>`)
		b.WriteString(`</ABR>`)
	}
	b.WriteString("</Transfer>")

	sink := &collectSink{}
	parser := NewParser(strings.NewReader(b.String()), sink)

	var ticks []int64
	parser.OnProgress = func(processed int64) { ticks = append(ticks, processed) }

	processed, err := parser.Parse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), processed)
	// Interval is 10,000; two records emit no progress
	assert.Empty(t, ticks)
}

func TestParserSinkErrorStopsParse(t *testing.T) {
	sink := &collectSink{fail: assert.AnError}
	_, err := NewParser(strings.NewReader(sampleTransfer), sink).Parse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestParserMalformedXML(t *testing.T) {
	doc := `<Transfer><ABR recordLastUpdatedDate="20231105"><ABN status="ACT">123`
	sink := &collectSink{}
	_, err := NewParser(strings.NewReader(doc), sink).Parse(context.Background())
	assert.Error(t, err)
}
