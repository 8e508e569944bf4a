package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/exp/slices"
)

// This program drives a running gavel instance through a complete auction
// lifecycle over its public API, and verifies the outcome. It needs a chain
// whose height actually advances, so point it at an instance backed by a real
// settlement node, not the in-process fake.

func main() {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	fs := flag.NewFlagSet("smoketest", flag.ContinueOnError)
	var (
		gavelURL  = fs.String("gavel-url", "http://localhost:4440", "URL for the gavel API")
		owner     = fs.String("owner", "gv1smokeowner", "owner address for the test auction")
		bidder1   = fs.String("bidder1", "gv1smokealice", "first bidder address")
		bidder2   = fs.String("bidder2", "gv1smokebob", "second bidder address")
		increment = fs.Int64("increment", 10, "bid increment for the test auction")
		blockwait = fs.Int64("blockwait", 2, "blocks between now and auction start")
		duration  = fs.Int64("duration", 10, "auction duration in blocks")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SMOKETEST")); err != nil {
		return fmt.Errorf("parse flags: %v", err)
	}

	var latestHeight int64
	{
		var ping struct {
			ChainID      string `json:"chain_id"`
			LatestHeight int64  `json:"latest_height"`
		}
		if err := getJSON(*gavelURL+"/-/ping", &ping); err != nil {
			return fmt.Errorf("ping: %w", err)
		}

		log.Printf("chain %s at height %d", ping.ChainID, ping.LatestHeight)
		latestHeight = ping.LatestHeight
	}

	var auctionID string
	var startBlock, endBlock int64
	{
		startBlock = latestHeight + *blockwait
		endBlock = startBlock + *duration

		log.Printf("creating auction, start %d, end %d", startBlock, endBlock)

		var created struct {
			ID    string `json:"id"`
			Phase string `json:"phase"`
		}
		err := postJSON(*gavelURL+"/v0/auctions", map[string]any{
			"owner":         *owner,
			"bid_increment": *increment,
			"start_block":   startBlock,
			"end_block":     endBlock,
		}, &created)
		if err != nil {
			return fmt.Errorf("create auction: %w", err)
		}

		log.Printf("auction %s, phase %s", created.ID, created.Phase)
		auctionID = created.ID
	}

	auctionURL := *gavelURL + "/v0/auctions/" + auctionID

	{
		log.Printf("waiting for auction to go active")
		if err := waitForPhase(auctionURL, "active"); err != nil {
			return fmt.Errorf("wait for active: %w", err)
		}
	}

	{
		log.Printf("bidding: %s 10x increment, %s 15x increment", *bidder1, *bidder2)

		var bid struct {
			HighestBidder     string `json:"highest_bidder"`
			HighestBindingBid int64  `json:"highest_binding_bid"`
		}

		if err := postJSON(auctionURL+"/bids", map[string]any{"bidder": *bidder1, "amount": 10 * *increment}, &bid); err != nil {
			return fmt.Errorf("bid 1: %w", err)
		}
		log.Printf("after bid 1: leader %s, binding %d", bid.HighestBidder, bid.HighestBindingBid)

		if err := postJSON(auctionURL+"/bids", map[string]any{"bidder": *bidder2, "amount": 15 * *increment}, &bid); err != nil {
			return fmt.Errorf("bid 2: %w", err)
		}
		log.Printf("after bid 2: leader %s, binding %d", bid.HighestBidder, bid.HighestBindingBid)

		if bid.HighestBidder != *bidder2 {
			return fmt.Errorf("expected %s to lead, have %s", *bidder2, bid.HighestBidder)
		}
		if want := 11 * *increment; bid.HighestBindingBid != want {
			return fmt.Errorf("expected binding bid %d, have %d", want, bid.HighestBindingBid)
		}
	}

	{
		log.Printf("waiting for auction to end")
		if err := waitForPhase(auctionURL, "ended"); err != nil {
			return fmt.Errorf("wait for ended: %w", err)
		}
	}

	var totalPaid int64
	{
		for _, step := range []struct {
			caller string
			want   int64
		}{
			{*owner, 11 * *increment},   // binding price
			{*bidder2, 4 * *increment},  // escrow above binding price
			{*bidder1, 10 * *increment}, // full refund
		} {
			var withdrawal struct {
				Amount int64 `json:"amount"`
			}
			if err := postJSON(auctionURL+"/withdrawals", map[string]any{"caller": step.caller}, &withdrawal); err != nil {
				return fmt.Errorf("withdraw %s: %w", step.caller, err)
			}
			log.Printf("withdrew %d for %s", withdrawal.Amount, step.caller)
			if withdrawal.Amount != step.want {
				return fmt.Errorf("withdraw %s: want %d, have %d", step.caller, step.want, withdrawal.Amount)
			}
			totalPaid += withdrawal.Amount
		}

		if want := 25 * *increment; totalPaid != want {
			return fmt.Errorf("total paid out: want %d, have %d", want, totalPaid)
		}

		log.Printf("total paid out %d matches total deposited", totalPaid)
	}

	{
		var events struct {
			Events []struct {
				Kind string `json:"kind"`
			} `json:"events"`
		}
		if err := getJSON(auctionURL+"/events", &events); err != nil {
			return fmt.Errorf("events: %w", err)
		}

		var haveKinds []string
		for _, e := range events.Events {
			haveKinds = append(haveKinds, e.Kind)
		}

		wantKinds := []string{"created", "bid", "bid", "withdrawal", "withdrawal", "withdrawal"}
		if !slices.Equal(wantKinds, haveKinds) {
			return fmt.Errorf("event kinds: want %v, have %v", wantKinds, haveKinds)
		}

		log.Printf("event history matched")
	}

	log.Printf("OK")
	return nil
}

//
//
//

func waitForPhase(auctionURL, phase string) error {
	var previous string
	for {
		var a struct {
			Phase string `json:"phase"`
		}
		if err := getJSON(auctionURL, &a); err != nil {
			return fmt.Errorf("get auction: %w", err)
		}

		if a.Phase == phase {
			log.Printf("phase %s", a.Phase)
			return nil
		}

		if a.Phase != previous {
			log.Printf("phase %s, waiting for %s", a.Phase, phase)
			previous = a.Phase
		}

		time.Sleep(250 * time.Millisecond)
	}
}

func getJSON(url string, res any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, res)
}

func postJSON(url string, body, res any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, res)
}

func decodeResponse(resp *http.Response, res any) error {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
