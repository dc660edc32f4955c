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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

const pricingBaseURL = "https://pricing.us-east-1.amazonaws.com"

// PricingRecord is one on-demand EC2 price point.
type PricingRecord struct {
	InstanceType    string  `parquet:"instance_type"`
	Region          string  `parquet:"region"`
	OperatingSystem string  `parquet:"operating_system"`
	Tenancy         string  `parquet:"tenancy"`
	PricePerHour    float64 `parquet:"price_per_hour"`
	Currency        string  `parquet:"currency"`
}

// PricingSource fetches on-demand EC2 pricing for one region from the public
// AWS offer files and materializes it as parquet.
type PricingSource struct {
	Region  string
	BaseURL string
	Client  *http.Client
}

func NewPricingSource(region string) *PricingSource {
	return &PricingSource{
		Region:  region,
		BaseURL: pricingBaseURL,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *PricingSource) Name() string { return "ondemand_pricing" }

func (s *PricingSource) Materialize(ctx context.Context, path string) error {
	records, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	return writeParquet(path, records)
}

// offerFile is the subset of the EC2 offer document we consume.
type offerFile struct {
	Products map[string]struct {
		Attributes struct {
			InstanceType    string `json:"instanceType"`
			OperatingSystem string `json:"operatingSystem"`
			Tenancy         string `json:"tenancy"`
			RegionCode      string `json:"regionCode"`
		} `json:"attributes"`
	} `json:"products"`
	Terms struct {
		OnDemand map[string]map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func (s *PricingSource) fetch(ctx context.Context) ([]PricingRecord, error) {
	url := fmt.Sprintf("%s/offers/v1.0/aws/AmazonEC2/current/%s/index.json", s.BaseURL, s.Region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing offer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pricing offer: unexpected status %s", resp.Status)
	}

	var offer offerFile
	if err := json.NewDecoder(resp.Body).Decode(&offer); err != nil {
		return nil, fmt.Errorf("decode pricing offer: %w", err)
	}

	var records []PricingRecord
	for sku, product := range offer.Products {
		attrs := product.Attributes
		if attrs.InstanceType == "" {
			continue
		}
		terms, ok := offer.Terms.OnDemand[sku]
		if !ok {
			continue
		}
		for _, term := range terms {
			for _, dim := range term.PriceDimensions {
				if dim.Unit != "Hrs" {
					continue
				}
				for currency, amount := range dim.PricePerUnit {
					price, err := strconv.ParseFloat(amount, 64)
					if err != nil || price == 0 {
						continue
					}
					records = append(records, PricingRecord{
						InstanceType:    attrs.InstanceType,
						Region:          attrs.RegionCode,
						OperatingSystem: attrs.OperatingSystem,
						Tenancy:         attrs.Tenancy,
						PricePerHour:    price,
						Currency:        currency,
					})
				}
			}
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("pricing offer for %s contained no hourly on-demand prices", s.Region)
	}
	return records, nil
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}
