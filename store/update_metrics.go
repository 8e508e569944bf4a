package store

import (
	"context"
	"fmt"
	"strconv"

	"gavel/metrics"
)

func UpdateMetrics(ctx context.Context, s Store) (err error) {
	auctions, err := s.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}

	for _, a := range auctions {
		id := a.ID.String()

		metrics.AuctionInfo.WithLabelValues(id, a.Owner, strconv.FormatBool(a.Canceled)).Set(1)
		metrics.AuctionHighestBindingBid.WithLabelValues(id).Set(float64(a.HighestBindingBid))
		metrics.AuctionCreatedAt.WithLabelValues(id).Set(float64(a.CreatedAt.Unix()))

		escrows, err := s.ListEscrows(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("list escrows for %s: %w", id, err)
		}

		var total int64
		for _, e := range escrows {
			total += e.Amount
		}
		metrics.AuctionEscrowedTotal.WithLabelValues(id).Set(float64(total))
	}

	return nil
}
