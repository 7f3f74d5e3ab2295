package processor

import (
	"fmt"
	"sort"
	"time"

	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// JoinGeoOrders 生成客户订单地理位置表：
// customerGeo ⋈ geoRef（邮编前缀），再 ⋈ ordersGeo（客户ID），均为内连接。
// 同一邮编前缀的多条地理记录会使结果行数放大，不做去重。
// 结果按下单时间稳定排序，并重新生成 index 列。
func JoinGeoOrders(customerGeo, geoRef, ordersGeo dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := requireKey(SourceCustomerGeo, customerGeo, ColCustomerZip); err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := requireKey(SourceGeoReference, geoRef, ColGeoZip); err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := requireKey(SourceCustomerGeo, customerGeo, ColCustomerID); err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := requireKey(SourceOrdersGeo, ordersGeo, ColCustomerID); err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := requireKey(SourceOrdersGeo, ordersGeo, ColPurchaseTime); err != nil {
		return dataframe.DataFrame{}, err
	}

	customerLocation := innerJoin(customerGeo, geoRef, ColCustomerZip, ColGeoZip)
	joined := innerJoin(customerLocation, ordersGeo, ColCustomerID, ColCustomerID)
	if joined.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("join customer geolocation: %w", joined.Err)
	}

	return arrangeByPurchaseTime(joined)
}

func requireKey(table string, df dataframe.DataFrame, key string) error {
	if !utils.HasColumn(df, key) {
		return &JoinKeyMismatchError{Table: table, Key: key}
	}
	return nil
}

// innerJoin 哈希内连接，结果按左表行序、同键下按右表行序排列。
// 缺失值的键不参与匹配；键名相同时右表的键列不重复输出，其余重名列加 _y 后缀。
func innerJoin(left, right dataframe.DataFrame, leftKey, rightKey string) dataframe.DataFrame {
	buckets := make(map[string][]int)
	rightCol := right.Col(rightKey)
	for j, k := range rightCol.Records() {
		if rightCol.Elem(j).IsNA() {
			continue
		}
		buckets[k] = append(buckets[k], j)
	}

	var li, ri []int
	leftCol := left.Col(leftKey)
	for i, k := range leftCol.Records() {
		if leftCol.Elem(i).IsNA() {
			continue
		}
		for _, j := range buckets[k] {
			li = append(li, i)
			ri = append(ri, j)
		}
	}

	l := utils.SubsetRows(left, li)
	r := utils.SubsetRows(right, ri)

	var keep []string
	for _, name := range r.Names() {
		if name == rightKey && leftKey == rightKey {
			continue
		}
		if utils.HasColumn(l, name) {
			r = r.Rename(name+"_y", name)
			name += "_y"
		}
		keep = append(keep, name)
	}
	return l.CBind(r.Select(keep))
}

// arrangeByPurchaseTime 按下单时间稳定升序排序，缺失时间排在最后，并重建 index 列
func arrangeByPurchaseTime(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	times, valid, err := purchaseTimes(df)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	order := make([]int, df.Nrow())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if valid[ia] != valid[ib] {
			return valid[ia]
		}
		return times[ia].Before(times[ib])
	})

	sorted := utils.SubsetRows(df, order)
	if utils.HasColumn(sorted, ColIndex) {
		sorted = sorted.Drop(ColIndex)
	}
	return utils.WithIndex(sorted, ColIndex), nil
}

// purchaseTimes 解析下单时间列，缺失值对应 ok=false
func purchaseTimes(df dataframe.DataFrame) ([]time.Time, []bool, error) {
	col := df.Col(ColPurchaseTime)
	if col.Err != nil {
		return nil, nil, col.Err
	}
	return parseTimes(col)
}

func parseTimes(col series.Series) ([]time.Time, []bool, error) {
	times := make([]time.Time, col.Len())
	valid := make([]bool, col.Len())
	for i := 0; i < col.Len(); i++ {
		t, ok, err := utils.ParseTime(col.Elem(i))
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", col.Name, i, err)
		}
		times[i], valid[i] = t, ok
	}
	return times, valid, nil
}
