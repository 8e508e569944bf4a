package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var AuctionInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gavel",
	Name:      "auction_info",
	Help:      "Metadata for all known auctions.",
}, []string{"auction_id", "owner", "canceled"})

var AuctionHighestBindingBid = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gavel",
	Name:      "auction_highest_binding_bid",
	Help:      "Current highest binding bid for all known auctions.",
}, []string{"auction_id"})

var AuctionEscrowedTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gavel",
	Name:      "auction_escrowed_total",
	Help:      "Sum of escrowed balances for all known auctions.",
}, []string{"auction_id"})

var AuctionCreatedAt = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gavel",
	Name:      "auction_created_at",
	Help:      "UNIX timestamp reflecting created_at for all known auctions.",
}, []string{"auction_id"})
