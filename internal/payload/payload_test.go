package payload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tylercrumpton/open-sespame/internal/directory"
)

func TestFormatRecord(t *testing.T) {
	tests := []struct {
		name   string
		record *directory.Record
		want   string
		ok     bool
	}{
		{name: "nil record", record: nil},
		{name: "absent badges", record: directory.NewRecord("", "bob", nil)},
		{name: "empty badges", record: directory.NewRecord("", "bob", []string{})},
		{name: "single empty badge", record: directory.NewRecord("", "bob", []string{""})},
		{name: "one badge", record: directory.NewRecord("", "alice", []string{"AB12"}), want: "alice,AB12\n", ok: true},
		{
			name:   "order is preserved",
			record: directory.NewRecord("", "carol", []string{"EF56", "CD34"}),
			want:   "carol,EF56,CD34\n",
			ok:     true,
		},
		{
			name:   "duplicates are kept",
			record: directory.NewRecord("", "dave", []string{"AA", "AA"}),
			want:   "dave,AA,AA\n",
			ok:     true,
		},
		{name: "missing uid is not validated", record: directory.NewRecord("", "", []string{"AB12"}), want: ",AB12\n", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatRecord(tt.record)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildEndToEndExample(t *testing.T) {
	records := []*directory.Record{
		directory.NewRecord("", "alice", []string{"AB12"}),
		directory.NewRecord("", "bob", []string{}),
		directory.NewRecord("", "carol", []string{"CD34", "EF56"}),
	}

	p := Build(records)

	assert.Equal(t, "alice,AB12\ncarol,CD34,EF56\n", p.String())
	assert.Equal(t, 2, p.Lines)
	assert.Equal(t, 3, p.Scanned)
	assert.Equal(t, len("alice,AB12\ncarol,CD34,EF56\n"), p.Len())
}

func TestBuildLineCountMatchesEligibleRecords(t *testing.T) {
	var records []*directory.Record

	eligible := 0

	for i := 0; i < 50; i++ {
		var badges []string
		if i%3 == 0 {
			badges = []string{"B" + strings.Repeat("1", i%5+1)}
			eligible++
		}

		records = append(records, directory.NewRecord("", "user", badges))
	}

	p := Build(records)

	assert.Equal(t, eligible, p.Lines)
	assert.Equal(t, eligible, strings.Count(p.String(), "\n"))
	assert.Equal(t, 50, p.Scanned)
}

func TestBuildEmpty(t *testing.T) {
	p := Build(nil)

	assert.Empty(t, p.Body)
	assert.Zero(t, p.Len())
	assert.Zero(t, p.Lines)
}

func TestLenCountsBytes(t *testing.T) {
	p := Build([]*directory.Record{directory.NewRecord("", "jürgen", []string{"ÄB12"})})

	assert.Equal(t, "jürgen,ÄB12\n", p.String())
	assert.Equal(t, 14, p.Len())
}

func TestUnsafe(t *testing.T) {
	assert.False(t, Unsafe(directory.NewRecord("", "alice", []string{"AB12"})))
	assert.True(t, Unsafe(directory.NewRecord("", "al,ice", []string{"AB12"})))
	assert.True(t, Unsafe(directory.NewRecord("", "alice", []string{"AB\n12"})))
}
