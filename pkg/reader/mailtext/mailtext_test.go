package mailtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlain(t *testing.T) {
	assert.Equal(t, "Rs.10 debited on 01-02-26", Plain("  Rs.10\r\n\tdebited  on 01-02-26\n"))
	assert.Equal(t, "", Plain(" \n "))
}

func TestFromHTML(t *testing.T) {
	in := `<html><head><STYLE type="text/css">td { color: red }</STYLE></head>
<body><script>var x = "<b>";</script><p>INR&nbsp;1,234.56 spent at <b>AMAZON</b> &amp; co</p></body></html>`
	assert.Equal(t, "INR 1,234.56 spent at AMAZON & co", FromHTML(in))
}

func TestFromHTML_Fragments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"snippet entities", "You&#39;ve paid &#8377;250 to Swiggy", "You've paid ₹250 to Swiggy"},
		{"cells kept apart", "<tr><td>Amount</td><td>Rs.50</td></tr>", "Amount Rs.50"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromHTML(tc.in))
		})
	}
}
