package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDropsRepeatedHeader(t *testing.T) {
	got := Merge("FlowID", "FlowID,Dur\nA,1\n", "FlowID,Dur\nB,2\n")
	assert.Equal(t, "FlowID,Dur\nA,1\nB,2", got)
}

func TestMergeWithoutMarkerMatchesCanonicalHeader(t *testing.T) {
	got := Merge("", "FlowID,Dur\nA,1\n", "FlowID,Dur\nB,2\n")
	assert.Equal(t, "FlowID,Dur\nA,1\nB,2", got)
}

func TestMergeIsAssociative(t *testing.T) {
	a := "Flow ID,Src IP\n1,10.0.0.1\n2,10.0.0.2\n"
	b := "Flow ID,Src IP\n3,10.0.0.3\n"
	c := "Flow ID,Src IP\r\n4,10.0.0.4\r\n5,10.0.0.5\r\n"

	batch := Merge(DefaultHeaderMarker, a, b, c)
	left := Merge(DefaultHeaderMarker, Merge(DefaultHeaderMarker, a, b), c)
	right := Merge(DefaultHeaderMarker, a, Merge(DefaultHeaderMarker, b, c))

	assert.Equal(t, batch, left)
	assert.Equal(t, batch, right)

	rec := ParseRecord(batch)
	assert.Equal(t, "Flow ID,Src IP", rec.Header)
	assert.Equal(t, []string{"1,10.0.0.1", "2,10.0.0.2", "3,10.0.0.3", "4,10.0.0.4", "5,10.0.0.5"}, rec.Rows)
}

func TestMergeHeaderOnlyInputs(t *testing.T) {
	got := Merge(DefaultHeaderMarker, "Flow ID,Dur\n", "Flow ID,Dur\n", "Flow ID,Dur\nA,1\n")
	assert.Equal(t, "Flow ID,Dur\nA,1", got)

	rec := ParseRecord(got)
	assert.Len(t, rec.Rows, 1)
}

func TestMergeDropsCanonicalHeaderWithoutMarker(t *testing.T) {
	got := Merge(DefaultHeaderMarker, "FlowID,Dur\nA,1\n", "FlowID,Dur\nB,2\n")
	assert.Equal(t, "FlowID,Dur\nA,1\nB,2", got)
}

func TestMergeMarkerDropsHeadersThatDifferSlightly(t *testing.T) {
	got := Merge(DefaultHeaderMarker, "Flow ID,Dur\nA,1\n", "Flow ID ,Dur \nB,2\n")
	assert.Equal(t, "Flow ID,Dur\nA,1\nB,2", got)
}

func TestMergeNothing(t *testing.T) {
	assert.Equal(t, "", Merge(DefaultHeaderMarker))
	assert.Equal(t, CaptureRecord{}, ParseRecord(""))
}
