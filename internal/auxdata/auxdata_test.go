// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package auxdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	calls   int
	failErr error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Materialize(_ context.Context, path string) error {
	f.calls++
	if f.failErr != nil {
		return f.failErr
	}
	return writeParquet(path, []PricingRecord{
		{InstanceType: "m5.large", Region: "us-east-1", PricePerHour: 0.096, Currency: "USD"},
	})
}

func TestMaterializer_CachesByAge(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(dir, time.Hour)
	src := &fakeSource{name: "ondemand_pricing"}

	p1, err := m.Materialize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ondemand_pricing.parquet"), p1)
	assert.Equal(t, 1, src.calls)

	p2, err := m.Materialize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, src.calls, "fresh cache must not refetch")
}

func TestMaterializer_RefetchesStale(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(dir, time.Hour)
	src := &fakeSource{name: "ondemand_pricing"}

	p, err := m.Materialize(context.Background(), src)
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(p, old, old))

	_, err = m.Materialize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestMaterializer_FailedFetchLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	m := NewMaterializer(dir, time.Hour)
	src := &fakeSource{name: "broken", failErr: errors.New("network down")}

	_, err := m.Materialize(context.Background(), src)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "broken.parquet"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPricingSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/offers/v1.0/aws/AmazonEC2/current/us-east-1/index.json", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"products": {
				"SKU1": {"attributes": {"instanceType": "m5.large", "operatingSystem": "Linux",
					"tenancy": "Shared", "regionCode": "us-east-1"}},
				"SKU2": {"attributes": {}}
			},
			"terms": {"OnDemand": {
				"SKU1": {"SKU1.T": {"priceDimensions": {
					"SKU1.T.D": {"unit": "Hrs", "pricePerUnit": {"USD": "0.0960000000"}}
				}}}
			}}
		}`))
	}))
	defer server.Close()

	src := NewPricingSource("us-east-1")
	src.BaseURL = server.URL

	records, err := src.fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "m5.large", records[0].InstanceType)
	assert.InDelta(t, 0.096, records[0].PricePerHour, 1e-9)
}

func TestSavingsPlanSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"terms": {"savingsPlan": [{
			"leaseContractLength": {"duration": 1, "unit": "year"},
			"purchaseOption": "No Upfront",
			"rates": [{
				"discountedSku": "SKU1",
				"discountedUsagetype": "BoxUsage:m5.large",
				"discountedOperation": "RunInstances",
				"discountedRate": {"price": "0.0610000000", "currency": "USD"}
			}]
		}]}}`))
	}))
	defer server.Close()

	src := NewSavingsPlanSource("us-east-1")
	src.BaseURL = server.URL

	records, err := src.fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1year", records[0].LeaseLength)
	assert.Equal(t, "No Upfront", records[0].PurchaseOption)
	assert.InDelta(t, 0.061, records[0].Rate, 1e-9)
}

func TestWriteParquet_Readable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	rows := []PricingRecord{
		{InstanceType: "m5.large", PricePerHour: 0.096},
		{InstanceType: "m5.xlarge", PricePerHour: 0.192},
	}
	require.NoError(t, writeParquet(path, rows))

	got, err := parquet.ReadFile[PricingRecord](path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
