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
	"strconv"
	"time"
)

// SavingsPlanRecord is one compute savings-plan rate.
type SavingsPlanRecord struct {
	DiscountedSKU   string  `parquet:"discounted_sku"`
	DiscountedUsage string  `parquet:"discounted_usage_type"`
	Operation       string  `parquet:"discounted_operation"`
	LeaseLength     string  `parquet:"lease_length"`
	PurchaseOption  string  `parquet:"purchase_option"`
	Rate            float64 `parquet:"rate"`
	Currency        string  `parquet:"currency"`
}

// SavingsPlanSource fetches compute savings-plan rates for one region from
// the public AWS savings-plan offer files.
type SavingsPlanSource struct {
	Region  string
	BaseURL string
	Client  *http.Client
}

func NewSavingsPlanSource(region string) *SavingsPlanSource {
	return &SavingsPlanSource{
		Region:  region,
		BaseURL: pricingBaseURL,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *SavingsPlanSource) Name() string { return "savings_plan_rates" }

func (s *SavingsPlanSource) Materialize(ctx context.Context, path string) error {
	records, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	return writeParquet(path, records)
}

type savingsPlanFile struct {
	Terms struct {
		SavingsPlan []struct {
			LeaseContractLength struct {
				Duration int    `json:"duration"`
				Unit     string `json:"unit"`
			} `json:"leaseContractLength"`
			PurchaseOption string `json:"purchaseOption"`
			Rates          []struct {
				DiscountedSKU       string `json:"discountedSku"`
				DiscountedUsageType string `json:"discountedUsagetype"`
				DiscountedOperation string `json:"discountedOperation"`
				DiscountedRate      struct {
					Price    string `json:"price"`
					Currency string `json:"currency"`
				} `json:"discountedRate"`
			} `json:"rates"`
		} `json:"savingsPlan"`
	} `json:"terms"`
}

func (s *SavingsPlanSource) fetch(ctx context.Context) ([]SavingsPlanRecord, error) {
	url := fmt.Sprintf("%s/savingsPlan/v1.0/aws/AWSComputeSavingsPlans/current/%s/index.json",
		s.BaseURL, s.Region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch savings plan rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch savings plan rates: unexpected status %s", resp.Status)
	}

	var doc savingsPlanFile
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode savings plan rates: %w", err)
	}

	var records []SavingsPlanRecord
	for _, plan := range doc.Terms.SavingsPlan {
		lease := fmt.Sprintf("%d%s", plan.LeaseContractLength.Duration, plan.LeaseContractLength.Unit)
		for _, rate := range plan.Rates {
			price, err := strconv.ParseFloat(rate.DiscountedRate.Price, 64)
			if err != nil {
				continue
			}
			records = append(records, SavingsPlanRecord{
				DiscountedSKU:   rate.DiscountedSKU,
				DiscountedUsage: rate.DiscountedUsageType,
				Operation:       rate.DiscountedOperation,
				LeaseLength:     lease,
				PurchaseOption:  plan.PurchaseOption,
				Rate:            price,
				Currency:        rate.DiscountedRate.Currency,
			})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("savings plan offer for %s contained no rates", s.Region)
	}
	return records, nil
}
