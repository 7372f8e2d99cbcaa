package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders      = 50
	maxOrders      = 200
	numTraders     = 5
	serverAddress  = "http://localhost:8080"
	depositQuote   = int64(1_000_000)
	depositAsset   = int64(10_000)
	midPrice       = int64(100)
	priceBand      = int64(10)
	maxOrderQty    = int64(20)
	marketOrderPct = 20 // percentage of orders submitted without a price
)

var tickers = []string{"ABC", "XYZ", "FOO"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes min, max, mean, median, 95th and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// apiClient handles HTTP communication with the exchange API
type apiClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register": {name: "Register"},
			"token":    {name: "Token"},
			"deposit":  {name: "Deposit"},
			"order":    {name: "Submit Order"},
			"depth":    {name: "Orderbook"},
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one API request, records its latency and decodes the
// standard response envelope.
func (ac *apiClient) call(statKey, method, path, token string, payload interface{}) (json.RawMessage, error) {
	start := time.Now()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, ac.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ac.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		ac.stats[statKey].record(elapsed, true)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		ac.stats[statKey].record(elapsed, true)
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		ac.stats[statKey].record(elapsed, true)
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(raw))
	}
	if !env.Success {
		ac.stats[statKey].record(elapsed, true)
		if env.Error != nil {
			return nil, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	ac.stats[statKey].record(elapsed, false)
	return env.Data, nil
}

// trader is one simulated account with its own token
type trader struct {
	accountID string
	token     string
}

func (ac *apiClient) registerTrader(name string) (*trader, error) {
	data, err := ac.call("register", "POST", "/api/v1/public/register", "", map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	var account struct {
		AccountID string `json:"account_id"`
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	}
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}

	token, err := ac.fetchToken(account.APIKey, account.APISecret)
	if err != nil {
		return nil, err
	}
	return &trader{accountID: account.AccountID, token: token}, nil
}

func (ac *apiClient) fetchToken(apiKey, apiSecret string) (string, error) {
	data, err := ac.call("token", "POST", "/api/v1/auth/token", "", map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func (ac *apiClient) deposit(t *trader, ticker string, amount int64) error {
	_, err := ac.call("deposit", "POST", "/api/v1/balance/deposit", t.token, map[string]interface{}{
		"ticker": ticker,
		"amount": amount,
	})
	return err
}

// submitOrder sends one random order; market orders omit the price field.
func (ac *apiClient) submitOrder(t *trader) error {
	payload := map[string]interface{}{
		"ticker": tickers[rand.Intn(len(tickers))],
		"qty":    rand.Int63n(maxOrderQty) + 1,
	}
	if rand.Intn(2) == 0 {
		payload["direction"] = "BUY"
	} else {
		payload["direction"] = "SELL"
	}
	if rand.Intn(100) >= marketOrderPct {
		payload["price"] = midPrice + rand.Int63n(2*priceBand+1) - priceBand
	}

	_, err := ac.call("order", "POST", "/api/v1/order", t.token, payload)
	return err
}

func (ac *apiClient) depth(ticker string) (string, error) {
	data, err := ac.call("depth", "GET", "/api/v1/public/orderbook/"+ticker, "", nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// setupInstruments registers the simulation tickers using the admin
// credentials from the environment.
func (ac *apiClient) setupInstruments() error {
	apiKey := os.Getenv("ADMIN_API_KEY")
	apiSecret := os.Getenv("ADMIN_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Warn().Msg("ADMIN_API_KEY/ADMIN_API_SECRET not set; assuming instruments already exist")
		return nil
	}

	token, err := ac.fetchToken(apiKey, apiSecret)
	if err != nil {
		return err
	}

	for _, ticker := range tickers {
		_, err := ac.call("register", "POST", "/api/v1/admin/instrument", token, map[string]interface{}{
			"ticker":    ticker,
			"name":      ticker + " Test Instrument",
			"tick_size": 1,
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return err
		}
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (ac *apiClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range ac.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the exchange simulation against a server already listening on
// localhost: it registers traders, funds them, streams random orders from
// concurrent workers and reports endpoint latencies.
func main() {
	client := newAPIClient()

	if err := client.setupInstruments(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up instruments")
	}

	// Register and fund the traders
	traders := make([]*trader, 0, numTraders)
	for i := 0; i < numTraders; i++ {
		t, err := client.registerTrader(fmt.Sprintf("sim-trader-%d", i))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register trader")
		}

		if err := client.deposit(t, "USD", depositQuote); err != nil {
			log.Fatal().Err(err).Str("account_id", t.accountID).Msg("Failed to deposit quote currency")
		}
		for _, ticker := range tickers {
			if err := client.deposit(t, ticker, depositAsset); err != nil {
				log.Fatal().Err(err).Str("account_id", t.accountID).Msg("Failed to deposit asset")
			}
		}
		traders = append(traders, t)
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Int("traders", numTraders).Msg("Starting simulation")

	var wg sync.WaitGroup
	var submitted, rejected sync.Map
	for i, t := range traders {
		wg.Add(1)
		go func(workerID int, t *trader) {
			defer wg.Done()
			var ok, failed int
			for j := 0; j < targetOrders/numTraders; j++ {
				if err := client.submitOrder(t); err != nil {
					// Rejections for balance or liquidity are expected noise
					log.Debug().Err(err).Int("worker", workerID).Msg("order rejected")
					failed++
					continue
				}
				ok++
			}
			submitted.Store(workerID, ok)
			rejected.Store(workerID, failed)
		}(i, t)
	}
	wg.Wait()

	var totalOK, totalFailed int
	submitted.Range(func(_, v interface{}) bool { totalOK += v.(int); return true })
	rejected.Range(func(_, v interface{}) bool { totalFailed += v.(int); return true })

	log.Info().
		Int("accepted", totalOK).
		Int("rejected", totalFailed).
		Msg("Simulation complete")

	for _, ticker := range tickers {
		if depth, err := client.depth(ticker); err == nil {
			log.Info().Str("ticker", ticker).RawJSON("depth", []byte(depth)).Msg("final orderbook")
		}
	}

	client.printPerformanceStats()
}
