package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	baseURL  string
	password string
)

// demo accounts, each referred by the previous one
var chain = []string{"alice", "bob", "carol", "dave"}

var rootCmd = &cobra.Command{
	Use:          "seed",
	Short:        "Register demo accounts with a referral chain on a running server",
	SilenceUsage: true,
	RunE:         runSeed,
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base url")
	rootCmd.Flags().StringVar(&password, "password", "password123", "password of the demo accounts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type client struct {
	http  *http.Client
	token string
}

func (c *client) post(path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	referrer := ""
	for _, username := range chain {
		c := &client{http: httpClient}
		err := c.post("/auth/register", map[string]string{
			"username": username,
			"password": password,
			"referrer": referrer,
		}, nil)
		if err != nil {
			log.WithError(err).Warnf("skipping %s", username)
		} else {
			log.WithField("referrer", referrer).Infof("registered %s", username)
		}
		referrer = username
	}

	// the last account of the chain buys during the sale, rewarding its upline
	buyer := &client{http: httpClient}
	var login struct {
		Token string `json:"token"`
	}
	if err := buyer.post("/auth/login", map[string]string{
		"username": chain[len(chain)-1],
		"password": password,
	}, &login); err != nil {
		return err
	}
	buyer.token = login.Token

	var receipt map[string]interface{}
	if err := buyer.post("/sale/buy", map[string]string{
		"amount": "100000000000000000000", // 100 tokens
		"paid":   "100000000000000000",    // 0.1 base currency, the excess is refunded
	}, &receipt); err != nil {
		return err
	}

	fmt.Printf("Seeded %d accounts, %s bought 100 tokens: %v\n", len(chain), chain[len(chain)-1], receipt)
	return nil
}
