package processor

import (
	"testing"
	"time"
)

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2018-01-01", "2018-01-05")
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := r.Bounds()
	if want := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC); !lo.Equal(want) {
		t.Errorf("lo = %v, want %v", lo, want)
	}
	if want := time.Date(2018, 1, 5, 23, 59, 59, 999999000, time.UTC); !hi.Equal(want) {
		t.Errorf("hi = %v, want %v", hi, want)
	}
	if r.String() != "2018-01-01..2018-01-05" {
		t.Errorf("String() = %q", r.String())
	}

	if _, err := ParseDateRange("2018/01/01", "2018-01-05"); err == nil {
		t.Error("expected error for malformed start date")
	}
	if _, err := ParseDateRange("2018-01-01", "tomorrow"); err == nil {
		t.Error("expected error for malformed end date")
	}
}

func purchaseFrame(t *testing.T, times ...string) [][]string {
	t.Helper()
	records := [][]string{{ColOrderID, ColPurchaseTime}}
	for i, ts := range times {
		records = append(records, []string{string(rune('a' + i)), ts})
	}
	return records
}

func TestFilterByPurchaseDateInclusiveBounds(t *testing.T) {
	df := frame(t, nil, purchaseFrame(t,
		"2017-12-31 23:59:59",
		"2018-01-01 00:00:00",
		"2018-01-03 12:30:00",
		"2018-01-05 23:59:59",
		"2018-01-06 00:00:00",
	)...)
	r, _ := ParseDateRange("2018-01-01", "2018-01-05")

	got, err := FilterByPurchaseDate(df, r)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "c", "d"}
	ids := column(got, ColOrderID)
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
	if df.Nrow() != 5 {
		t.Errorf("input frame changed: %d rows", df.Nrow())
	}
}

func TestFilterByPurchaseDateSingleDay(t *testing.T) {
	df := frame(t, nil, purchaseFrame(t,
		"2018-03-01 00:00:00",
		"2018-03-01 23:59:59",
		"2018-03-02 00:00:00",
	)...)
	r, _ := ParseDateRange("2018-03-01", "2018-03-01")

	got, err := FilterByPurchaseDate(df, r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nrow() != 2 {
		t.Errorf("got %d rows, want 2", got.Nrow())
	}
}

func TestFilterByPurchaseDateReversedRange(t *testing.T) {
	df := frame(t, nil, purchaseFrame(t, "2018-01-03 12:30:00")...)
	r, _ := ParseDateRange("2018-01-05", "2018-01-01")
	if !r.Empty() {
		t.Fatal("expected reversed range to be empty")
	}

	got, err := FilterByPurchaseDate(df, r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nrow() != 0 {
		t.Errorf("got %d rows, want 0", got.Nrow())
	}
	if got.Ncol() != df.Ncol() {
		t.Errorf("got %d columns, want %d", got.Ncol(), df.Ncol())
	}
}

func TestFilterByPurchaseDateIdempotent(t *testing.T) {
	df := frame(t, nil, purchaseFrame(t,
		"2018-01-01 08:00:00",
		"2018-01-02 08:00:00",
		"2018-02-01 08:00:00",
	)...)
	r, _ := ParseDateRange("2018-01-01", "2018-01-31")

	once, err := FilterByPurchaseDate(df, r)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := FilterByPurchaseDate(once, r)
	if err != nil {
		t.Fatal(err)
	}
	sameRecords(t, twice, once)
}

func TestFilterByPurchaseDateSkipsMissingTimes(t *testing.T) {
	df := frame(t, nil, purchaseFrame(t,
		"2018-01-01 08:00:00",
		"",
		"2018-01-02 08:00:00",
	)...)
	r, _ := ParseDateRange("2000-01-01", "2100-01-01")

	got, err := FilterByPurchaseDate(df, r)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nrow() != 2 {
		t.Errorf("got %d rows, want 2", got.Nrow())
	}
}

func TestFilterByPurchaseDateErrors(t *testing.T) {
	r, _ := ParseDateRange("2018-01-01", "2018-01-05")

	noCol := frame(t, nil, []string{ColOrderID}, []string{"a"})
	if _, err := FilterByPurchaseDate(noCol, r); err == nil {
		t.Error("expected error for missing purchase column")
	}

	bad := frame(t, nil, purchaseFrame(t, "01/02/2018")...)
	if _, err := FilterByPurchaseDate(bad, r); err == nil {
		t.Error("expected error for non-canonical timestamp")
	}
}
