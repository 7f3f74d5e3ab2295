package processor

import (
	"reflect"
	"testing"
)

func ordersFrame(t *testing.T, rows ...[]string) [][]string {
	t.Helper()
	return append([][]string{{ColOrderID, ColProductID, ColCategory, ColPurchaseTime}}, rows...)
}

func TestRankCategoriesScenario(t *testing.T) {
	df := frame(t, nil, ordersFrame(t,
		[]string{"o1", "p1", "toys", "2018-01-01 10:00:00"},
		[]string{"o2", "p2", "books", "2018-01-01 11:00:00"},
		[]string{"o3", "p1", "toys", "2018-01-02 10:00:00"},
		[]string{"o4", "p1", "toys", "2018-01-03 10:00:00"},
	)...)

	got, err := RankCategories(df)
	if err != nil {
		t.Fatal(err)
	}
	want := CategoryRanking{
		{Name: "toys", SoldCount: 3},
		{Name: "books", SoldCount: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RankCategories() = %+v, want %+v", got, want)
	}
	if got.Total() != df.Nrow() {
		t.Errorf("Total() = %d, want %d", got.Total(), df.Nrow())
	}
}

func TestRankCategoriesMissingCategoryIsOwnGroup(t *testing.T) {
	df := frame(t, nil, ordersFrame(t,
		[]string{"o1", "p1", "", "2018-01-01 10:00:00"},
		[]string{"o2", "p2", "books", "2018-01-01 11:00:00"},
		[]string{"o3", "p3", "", "2018-01-02 10:00:00"},
	)...)

	got, err := RankCategories(df)
	if err != nil {
		t.Fatal(err)
	}
	want := CategoryRanking{
		{Missing: true, SoldCount: 2},
		{Name: "books", SoldCount: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RankCategories() = %+v, want %+v", got, want)
	}
	if got.Total() != 3 {
		t.Errorf("Total() = %d, want 3", got.Total())
	}
}

func TestRankCategoriesTiesKeepFirstOccurrence(t *testing.T) {
	df := frame(t, nil, ordersFrame(t,
		[]string{"o1", "p1", "garden", "2018-01-01 10:00:00"},
		[]string{"o2", "p2", "auto", "2018-01-01 11:00:00"},
		[]string{"o3", "p3", "bed", "2018-01-02 10:00:00"},
		[]string{"o4", "p4", "bed", "2018-01-02 10:00:00"},
		[]string{"o5", "p5", "auto", "2018-01-02 10:00:00"},
		[]string{"o6", "p6", "garden", "2018-01-02 10:00:00"},
	)...)

	got, err := RankCategories(df)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	if want := []string{"garden", "auto", "bed"}; !reflect.DeepEqual(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}
}

func TestRankCategoriesEmpty(t *testing.T) {
	df := frame(t, nil, ordersFrame(t)...)
	got, err := RankCategories(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 || got.Total() != 0 {
		t.Errorf("RankCategories(empty) = %+v", got)
	}
}

func TestRankCategoriesMissingColumn(t *testing.T) {
	df := frame(t, nil, []string{ColOrderID, ColProductID}, []string{"o1", "p1"})
	if _, err := RankCategories(df); err == nil {
		t.Fatal("expected error for missing category column")
	}
}

func TestBestWorst(t *testing.T) {
	r := CategoryRanking{
		{Name: "a", SoldCount: 9},
		{Name: "b", SoldCount: 7},
		{Name: "c", SoldCount: 5},
		{Name: "d", SoldCount: 2},
	}

	best := r.Best(2)
	if len(best) != 2 || best[0].Name != "a" || best[1].Name != "b" {
		t.Errorf("Best(2) = %+v", best)
	}
	worst := r.Worst(2)
	if len(worst) != 2 || worst[0].Name != "d" || worst[1].Name != "c" {
		t.Errorf("Worst(2) = %+v", worst)
	}
	if len(r.Best(10)) != 4 || len(r.Worst(10)) != 4 {
		t.Error("Best/Worst should clamp to the ranking size")
	}

	df := r.DataFrame()
	if df.Nrow() != 4 || df.Col(ColSoldCount).Elem(0).String() != "9" {
		t.Errorf("DataFrame() = %v", df)
	}
}
