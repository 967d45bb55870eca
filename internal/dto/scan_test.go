package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScanPayloadAliases(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ScanPayload
	}{
		{
			name: "canonical fields",
			raw:  `{"username":"U2019001","exam_code":"CSC301","tag_number":"T1-0004"}`,
			want: ScanPayload{Username: "U2019001", ExamCode: "CSC301", TagNumber: "T1-0004"},
		},
		{
			name: "camelCase matric and exam",
			raw:  `{"matricNumber":"U2019001","examCode":"CSC301"}`,
			want: ScanPayload{Username: "U2019001", ExamCode: "CSC301"},
		},
		{
			name: "snake_case matric",
			raw:  `{"matric_no":"U2019001","exam":"CSC301"}`,
			want: ScanPayload{Username: "U2019001", ExamCode: "CSC301"},
		},
		{
			name: "student id and course code",
			raw:  `{"studentId":"abc-123","course_code":"CSC301"}`,
			want: ScanPayload{Username: "abc-123", ExamCode: "CSC301"},
		},
		{
			name: "camelCase tag",
			raw:  `{"username":"U2019001","tagNumber":"T1-0004"}`,
			want: ScanPayload{Username: "U2019001", TagNumber: "T1-0004"},
		},
		{
			name: "matricNumber wins over username",
			raw:  `{"username":"IGNORED","matricNumber":"U2019001","id":"IGNORED"}`,
			want: ScanPayload{Username: "U2019001"},
		},
		{
			name: "username wins over trailing identity aliases",
			raw:  `{"username":"U2019001","matric_no":"IGNORED","id":"IGNORED"}`,
			want: ScanPayload{Username: "U2019001"},
		},
		{
			name: "empty alias falls through to next",
			raw:  `{"username":"","matric_no":"U2019001"}`,
			want: ScanPayload{Username: "U2019001"},
		},
		{
			name: "numeric identifier",
			raw:  `{"id":2019001}`,
			want: ScanPayload{Username: "2019001"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseScanPayload([]byte(tc.raw)))
		})
	}
}

func TestParseScanPayloadPlainText(t *testing.T) {
	assert.Equal(t, ScanPayload{Username: "U2019001"}, ParseScanPayload([]byte("U2019001")))
	assert.Equal(t, ScanPayload{Username: "U2019001"}, ParseScanPayload([]byte(`"U2019001"`)))
	assert.Equal(t, ScanPayload{Username: "U2019001"}, ParseScanPayload([]byte("  U2019001\n")))
	assert.Equal(t, ScanPayload{}, ParseScanPayload([]byte("")))
	assert.Equal(t, ScanPayload{}, ParseScanPayload([]byte("   ")))
}

func TestParseScanPayloadTestModeAndPosition(t *testing.T) {
	got := ParseScanPayload([]byte(`{"username":"U1","test_mode":true,"position":5}`))
	assert.True(t, got.TestMode)
	assert.Equal(t, 5, got.Position)

	got = ParseScanPayload([]byte(`{"username":"U1","position":"12"}`))
	assert.Equal(t, 12, got.Position)

	got = ParseScanPayload([]byte(`{"username":"U1","position":"abc"}`))
	assert.Equal(t, 0, got.Position)
}
