package processor

import (
	"testing"

	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// frame 按加载器相同的规则构造测试表，首行为列名
func frame(t *testing.T, types map[string]series.Type, records ...[]string) dataframe.DataFrame {
	t.Helper()
	df, err := utils.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
		dataframe.WithTypes(types),
	)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	return df
}

func sameRecords(t *testing.T, got, want dataframe.DataFrame) {
	t.Helper()
	g, w := got.Records(), want.Records()
	if len(g) != len(w) {
		t.Fatalf("got %d records, want %d\ngot:  %v\nwant: %v", len(g), len(w), g, w)
	}
	for i := range w {
		if len(g[i]) != len(w[i]) {
			t.Fatalf("record %d: got %v, want %v", i, g[i], w[i])
		}
		for j := range w[i] {
			if g[i][j] != w[i][j] {
				t.Fatalf("record %d: got %v, want %v", i, g[i], w[i])
			}
		}
	}
}

func column(df dataframe.DataFrame, name string) []string {
	return df.Col(name).Records()
}
