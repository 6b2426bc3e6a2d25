// Package setup is the terminal wizard generating the service config file.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/raeendev/portfolio-doctor/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes config.gen.yaml.
func RunTUI() error {
	var (
		listenAddr      string
		hostsStr        string
		contractStr     string
		generalLimitStr string
		orderLimitStr   string
		windowStr       string
		ttlStr          string
		fetchTimeoutStr string
		walDir          string
		apiKeyEnv       string
		apiSecretEnv    string
		confirm         bool
	)

	// defaults
	listenAddr = ":8085"
	hostsStr = "https://www.lbkex.net, https://api.lbkex.com, https://api.lbank.info"
	contractStr = "https://lbkperp.lbank.com"
	generalLimitStr = "200"
	orderLimitStr = "500"
	windowStr = "10s"
	ttlStr = "5s"
	fetchTimeoutStr = "30s"
	walDir = "./wal/portfolio"
	apiKeyEnv = "LBANK_API_KEY"
	apiSecretEnv = "LBANK_API_SECRET"

	// step 1: welcome + server
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("PORTFOLIO DOCTOR CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point it at your exchange account and go.\n"))

	fmt.Println(stepStyle.Render("STEP 1: SERVER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Description("host:port the JSON API binds to (e.g. :8085)").
				Value(&listenAddr).
				Validate(func(s string) error {
					if !strings.Contains(s, ":") {
						return fmt.Errorf("must be a host:port address")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: exchange hosts
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PORTFOLIO DOCTOR CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: EXCHANGE HOSTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("REST Hosts").
				Description("Comma-separated, tried in order on failure").
				Value(&hostsStr).
				Validate(validateHostList),
			huh.NewInput().
				Title("Contract Hosts").
				Description("Futures/contract API hosts, comma-separated").
				Value(&contractStr).
				Validate(validateHostList),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: limits and timing
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PORTFOLIO DOCTOR CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: LIMITS AND TIMING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("General Rate Limit").
				Description("Requests per window for read endpoints (e.g. 200)").
				Value(&generalLimitStr).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Order Rate Limit").
				Description("Requests per window for order endpoints (e.g. 500)").
				Value(&orderLimitStr).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Rate Limit Window").
				Description("Duration string (e.g. 10s)").
				Value(&windowStr).
				Validate(validateDuration),
			huh.NewInput().
				Title("Price Cache TTL").
				Description("How long ticker prices stay fresh (e.g. 5s)").
				Value(&ttlStr).
				Validate(validateDuration),
			huh.NewInput().
				Title("Fetch Timeout").
				Description("Whole portfolio fetch deadline (e.g. 30s)").
				Value(&fetchTimeoutStr).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: storage and credentials
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PORTFOLIO DOCTOR CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: STORAGE AND CREDENTIALS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Snapshot WAL Directory").
				Value(&walDir),
			huh.NewInput().
				Title("API Key Env Var").
				Description("Name of the env var holding the key, never the key itself").
				Value(&apiKeyEnv),
			huh.NewInput().
				Title("API Secret Env Var").
				Value(&apiSecretEnv),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PORTFOLIO DOCTOR CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Listen: %s\nHosts: %s\nContract: %s\nLimits: %s/%s per %s\nCache TTL: %s\nFetch Timeout: %s\nWAL: %s\nCredentials: $%s / $%s\n",
		listenAddr, hostsStr, contractStr, generalLimitStr, orderLimitStr, windowStr, ttlStr, fetchTimeoutStr, walDir, apiKeyEnv, apiSecretEnv,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	generalLimit, _ := strconv.Atoi(generalLimitStr)
	orderLimit, _ := strconv.Atoi(orderLimitStr)

	cfgTmp := config.ConfigTmp{
		ListenAddr:       listenAddr,
		Hosts:            splitHostList(hostsStr),
		ContractHosts:    splitHostList(contractStr),
		GeneralLimit:     generalLimit,
		OrderLimit:       orderLimit,
		LimitWindowStr:   windowStr,
		PriceCacheTTLStr: ttlStr,
		FetchTimeoutStr:  fetchTimeoutStr,
		WALDir:           walDir,
		APIKeyEnv:        apiKeyEnv,
		APISecretEnv:     apiSecretEnv,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateHostList(s string) error {
	hosts := splitHostList(s)
	if len(hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	for _, h := range hosts {
		if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
			return fmt.Errorf("%s: hosts must start with http:// or https://", h)
		}
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func splitHostList(s string) []string {
	parts := strings.Split(s, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	return hosts
}
