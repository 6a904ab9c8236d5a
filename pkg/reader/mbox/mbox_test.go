package mbox

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gombox "github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/spendsense/pkg/api"
	"github.com/spendsense/spendsense/pkg/logging"
	"github.com/spendsense/spendsense/pkg/parser"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func writeMbox(t *testing.T, messages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.mbox")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := gombox.NewWriter(f)
	for _, m := range messages {
		mw, err := w.CreateMessage("alerts@example.com", fixedNow)
		require.NoError(t, err)
		_, err = io.WriteString(mw, strings.ReplaceAll(m, "\n", "\r\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func newTestParser(t *testing.T) *parser.Parser {
	t.Helper()
	cfg := parser.DefaultConfig()
	cfg.Clock = func() time.Time { return fixedNow }
	p, err := parser.New(cfg, logging.Discard())
	require.NoError(t, err)
	return p
}

func readAll(t *testing.T, r *Reader) ([]*api.Transaction, error) {
	t.Helper()
	out := make(chan *api.Transaction, 10)
	ack := make(chan string, 10)
	err := r.Read(context.Background(), out, ack)
	var got []*api.Transaction
	for txn := range out {
		got = append(got, txn)
	}
	return got, err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Path: "x"}, nil)
	assert.ErrorContains(t, err, "parser is required")
	_, err = New(parser.Default(), Config{}, nil)
	assert.ErrorContains(t, err, "path is required")
}

func TestRead(t *testing.T) {
	htmlPart := base64.StdEncoding.EncodeToString([]byte("<p>ignored html</p>"))
	path := writeMbox(t,
		`From: HDFC Bank <alerts@hdfcbank.net>
Date: Tue, 03 Mar 2026 09:15:00 +0530
Message-Id: <abc123@hdfcbank.net>
Subject: Debit alert
Content-Type: text/plain; charset=UTF-8

Account XX12 has been DEBITED for Rs.99.00
`,
		`From: noreply@phonepe.com
Date: Thu, 05 Mar 2026 20:00:00 +0000
Message-Id: <p2@phonepe.com>
Subject: Receipt
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=UTF-8
Content-Transfer-Encoding: base64

`+htmlPart+`
--b1
Content-Type: text/plain; charset=UTF-8
Content-Transfer-Encoding: quoted-printable

You paid =E2=82=B9250.00 to Swiggy on 5 Mar 2026
--b1--
`,
		`From: friend@example.com
Subject: lunch?
Content-Type: text/plain

Are we still on for lunch
`,
		`From: ICICIB
Content-Type: text/html

<div>debited for Rs.1,200 on 14-10-26 trf to <b>Apollo Pharmacy</b></div>
`,
	)

	r, err := New(newTestParser(t), Config{Path: path, Source: "export"}, logging.Discard())
	require.NoError(t, err)

	got, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "abc123@hdfcbank.net", first.MessageID)
	assert.Equal(t, "alerts@hdfcbank.net", first.Sender)
	assert.Equal(t, "export", first.Source)
	assert.Equal(t, "2026-03-03", first.Date, "receive date used when the text has none")
	assert.Equal(t, parser.RuleDebitNotification, first.Rule)
	assert.True(t, first.IsBank)
	assert.Equal(t, time.Date(2026, 3, 3, 3, 45, 0, 0, time.UTC), first.ReceivedAt)

	second := got[1]
	assert.Equal(t, parser.RulePaymentConfirmation, second.Rule)
	assert.Equal(t, "Swiggy", second.Merchant)
	assert.Equal(t, api.CategoryFoodDining, second.SuggestedCategory)
	assert.Equal(t, "250.00", second.Amount.StringFixed(2))

	third := got[2]
	assert.Equal(t, "export#3", third.MessageID)
	assert.Equal(t, "ICICIB", third.Sender)
	assert.Equal(t, "Apollo Pharmacy", third.Merchant)
	assert.Equal(t, "2026-10-14", third.Date)
	assert.True(t, third.ReceivedAt.IsZero())
}

func TestRead_MissingFile(t *testing.T) {
	r, err := New(parser.Default(), Config{Path: filepath.Join(t.TempDir(), "none.mbox")}, logging.Discard())
	require.NoError(t, err)

	got, err := readAll(t, r)
	assert.ErrorContains(t, err, "opening mbox")
	assert.Empty(t, got)
}

func TestRead_Canceled(t *testing.T) {
	path := writeMbox(t, "From: a@b.c\n\nINR 5 spent\n", "From: a@b.c\n\nINR 6 spent\n")
	r, err := New(newTestParser(t), Config{Path: path}, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan *api.Transaction)
	err = r.Read(ctx, out, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, open := <-out
	assert.False(t, open)
}

func TestRead_Charsets(t *testing.T) {
	path := writeMbox(t,
		`From: SBI <alerts@sbi.co.in>
Date: Thu, 05 Mar 2026 10:00:00 +0000
Message-Id: <c1@sbi.co.in>
Subject: =?windows-1252?Q?paid_Rs.75_to_Caf=E9_Noir_on_5_Mar_2026?=
Content-Type: application/pdf
Content-Transfer-Encoding: base64

JVBERi0=
`,
		`From: alerts@axisbank.com
Message-Id: <c2@axisbank.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="m1"

--m1
Content-Type: text/plain; charset=UTF-8
Content-Disposition: attachment; filename="old.txt"

debited for Rs.9999 on 01-01-26
--m1
Content-Type: text/plain; charset=windows-1252
Content-Transfer-Encoding: quoted-printable

paid Rs.120 to Cr=E8me Br=FBl=E9e on 6 Mar 2026
--m1--
`,
	)

	r, err := New(newTestParser(t), Config{Path: path}, logging.Discard())
	require.NoError(t, err)

	got, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1@sbi.co.in", got[0].MessageID)
	assert.Equal(t, "Café Noir", got[0].Merchant, "subject decoded from windows-1252")
	assert.Equal(t, "75.00", got[0].Amount.StringFixed(2))

	assert.Equal(t, "Crème Brûlée", got[1].Merchant, "body decoded from windows-1252")
	assert.Equal(t, "120.00", got[1].Amount.StringFixed(2))
	assert.Equal(t, "2026-03-06", got[1].Date)
	assert.True(t, got[1].ReceivedAt.IsZero())
}
