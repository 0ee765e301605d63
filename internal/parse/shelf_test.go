package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseShelfLocation(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  ShelfLocation
		expectErr bool
	}{
		{
			name:     "Section and aisle",
			raw:      "Section A, Aisle 2",
			expected: ShelfLocation{Section: "A", Aisle: 2},
		},
		{
			name:     "Section, aisle and shelf",
			raw:      "section b, aisle 12, shelf 3",
			expected: ShelfLocation{Section: "B", Aisle: 12, Shelf: 3},
		},
		{
			name:     "Aisle before section",
			raw:      "Aisle 7 - Section C",
			expected: ShelfLocation{Section: "C", Aisle: 7},
		},
		{
			name:     "Compact notation",
			raw:      "B-12-3",
			expected: ShelfLocation{Section: "B", Aisle: 12, Shelf: 3},
		},
		{
			name:     "Compact without shelf",
			raw:      "  cd 4 ",
			expected: ShelfLocation{Section: "CD", Aisle: 4},
		},
		{
			name:     "Extra whitespace",
			raw:      "Section   D,   Aisle   1",
			expected: ShelfLocation{Section: "D", Aisle: 1},
		},
		{
			name:      "Free text",
			raw:       "Front Desk",
			expectErr: true,
		},
		{
			name:      "Empty",
			raw:       "   ",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseShelfLocation(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, parsed)
			}
		})
	}
}
