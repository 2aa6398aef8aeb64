package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	clevertouch "github.com/hemphen/clevertouch-go"
	"github.com/hemphen/clevertouch-go/internal/config"
	"github.com/hemphen/clevertouch-go/internal/tokenstore"
)

var (
	hostFlag         string
	manufacturerFlag string
	emailFlag        string
	tokenFileFlag    string
	fahrenheitFlag   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Cloud host (default "+clevertouch.DefaultHost+")")
	rootCmd.PersistentFlags().StringVar(&manufacturerFlag, "manufacturer", "", "OpenID realm (default "+clevertouch.DefaultManufacturer+")")
	rootCmd.PersistentFlags().StringVar(&emailFlag, "email", "", "Account email")
	rootCmd.PersistentFlags().StringVar(&tokenFileFlag, "token-file", config.DefaultTokenFile(), "Path of the stored refresh token")
	rootCmd.PersistentFlags().BoolVar(&fahrenheitFlag, "fahrenheit", false, "Read and write temperatures in °F")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setTempCmd)
	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(boostCmd)
}

func newAccount() *clevertouch.Account {
	return clevertouch.NewAccount(clevertouch.Config{
		Host:         hostFlag,
		Manufacturer: manufacturerFlag,
	})
}

// resumedAccount restores the stored session and refreshes it. The rotated
// refresh token is written back before any command runs.
func resumedAccount(ctx context.Context) (*clevertouch.Account, error) {
	state, err := tokenstore.Load(tokenFileFlag)
	if err != nil {
		return nil, fmt.Errorf("no stored session, run 'clevertouch-cli login' first: %w", err)
	}
	if emailFlag != "" && emailFlag != state.Email {
		return nil, fmt.Errorf("stored session belongs to %s, log in again for %s", state.Email, emailFlag)
	}

	account := newAccount()
	account.Resume(state.Email, state.RefreshToken)
	if err := account.RefreshSession(ctx); err != nil {
		return nil, err
	}
	if err := saveSession(account); err != nil {
		return nil, err
	}
	return account, nil
}

func saveSession(account *clevertouch.Account) error {
	return tokenstore.Save(tokenFileFlag, tokenstore.State{
		Email:        account.Email(),
		RefreshToken: account.Session().RefreshTokenValue(),
	})
}

func unit() clevertouch.Unit {
	if fahrenheitFlag {
		return clevertouch.UnitFahrenheit
	}
	return clevertouch.UnitCelsius
}

func unitSuffix() string {
	if fahrenheitFlag {
		return "°F"
	}
	return "°C"
}

func formatTemp(t clevertouch.Temperature) string {
	if !t.Valid() {
		return "-"
	}
	value, err := t.As(unit())
	if err != nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%s", value, unitSuffix())
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the refresh token",
	Long: `Authenticate with the account password and store the refresh token.

The password is prompted for and never stored; subsequent commands and
clevertouchd reuse the stored refresh token.`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	email := emailFlag
	if email == "" {
		fmt.Print("Email: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("an email is required")
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	account := newAccount()
	if err := account.Authenticate(cmd.Context(), email, string(password)); err != nil {
		return err
	}
	if err := saveSession(account); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s, session stored in %s\n", email, tokenFileFlag)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show all homes and devices",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account, err := resumedAccount(ctx)
	if err != nil {
		return err
	}

	homes, err := account.GetHomes(ctx)
	if err != nil {
		return err
	}
	sort.Slice(homes, func(i, j int) bool { return homes[i].ID < homes[j].ID })

	for _, home := range homes {
		fmt.Printf("%s (%s)\n", home.Info.Label, home.ID)

		ids := make([]string, 0, len(home.Devices))
		for id := range home.Devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			device := home.Devices[id]
			switch d := device.(type) {
			case *clevertouch.Radiator:
				fmt.Printf("  %s [%s, zone %s]\n", d.Label(), d.LocalID(), d.Zone().Label)
				heating := ""
				if d.Active {
					heating = ", heating"
				}
				fmt.Printf("    mode %s%s\n", d.HeatMode, heating)
				fmt.Printf("    current %s, target %s\n",
					formatTemp(d.Temperatures[clevertouch.SlotCurrent]),
					formatTemp(d.Temperatures[clevertouch.SlotTarget]))
				if d.HeatMode == clevertouch.HeatModeBoost && d.BoostRemaining > 0 {
					fmt.Printf("    boost %s remaining\n", (time.Duration(d.BoostRemaining) * time.Second).String())
				}
			case *clevertouch.Light:
				fmt.Printf("  %s [%s, zone %s]: light %s\n", d.Label(), d.LocalID(), d.Zone().Label, onOff(d.IsOn))
			case *clevertouch.Outlet:
				fmt.Printf("  %s [%s, zone %s]: outlet %s\n", d.Label(), d.LocalID(), d.Zone().Label, onOff(d.IsOn))
			default:
				fmt.Printf("  %s [%s, zone %s]: unsupported device\n", d.Label(), d.LocalID(), d.Zone().Label)
			}
		}
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

var setTempCmd = &cobra.Command{
	Use:   "set-temp <device> <slot> <value>",
	Short: "Write a temperature setpoint",
	Long: `Write a new value for one of a radiator's temperature slots.

The device is matched by id, in-home id or label. Writable slots:
comfort, eco, frost, boost, manual. Use 'target' to adjust the setpoint
of the currently active mode.`,
	Example: `  clevertouch-cli set-temp "Living room" comfort 21.5
  clevertouch-cli set-temp C1 target 68 --fahrenheit`,
	Args: cobra.ExactArgs(3),
	RunE: runSetTemp,
}

func runSetTemp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account, err := resumedAccount(ctx)
	if err != nil {
		return err
	}

	radiator, home, err := findRadiator(ctx, account, args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("malformed temperature %q", args[2])
	}

	slot := clevertouch.TempSlot(args[1])
	if slot == clevertouch.SlotTarget {
		err = radiator.SetTargetTemperature(ctx, value, unit())
	} else {
		err = radiator.SetTemperature(ctx, slot, value, unit())
	}
	if err != nil {
		return err
	}

	return confirm(ctx, home, radiator.ID(), func(fresh *clevertouch.Radiator) {
		fmt.Printf("%s: %s is now %s\n", fresh.Label(), slot, formatTemp(fresh.Temperatures[slot]))
	})
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode <device> <mode>",
	Short: "Switch a radiator's operating mode",
	Long: `Switch a radiator's operating mode.

Modes: comfort, eco, frost, program, boost, off.`,
	Example: `  clevertouch-cli set-mode "Living room" eco`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSetMode,
}

func runSetMode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account, err := resumedAccount(ctx)
	if err != nil {
		return err
	}

	radiator, home, err := findRadiator(ctx, account, args[0])
	if err != nil {
		return err
	}
	if err := radiator.SetHeatMode(ctx, clevertouch.HeatMode(args[1])); err != nil {
		return err
	}

	return confirm(ctx, home, radiator.ID(), func(fresh *clevertouch.Radiator) {
		fmt.Printf("%s: mode is now %s\n", fresh.Label(), fresh.HeatMode)
	})
}

var (
	boostMinutes int
	boostTemp    float64
)

var boostCmd = &cobra.Command{
	Use:   "boost <device>",
	Short: "Activate boost mode",
	Long: `Activate boost mode on a radiator, optionally adjusting the boost
duration and setpoint in the same write.`,
	Example: `  clevertouch-cli boost "Living room"
  clevertouch-cli boost C1 --minutes 30 --temp 22`,
	Args: cobra.ExactArgs(1),
	RunE: runBoost,
}

func init() {
	boostCmd.Flags().IntVar(&boostMinutes, "minutes", 0, "Boost duration in minutes (0 keeps the configured duration)")
	boostCmd.Flags().Float64Var(&boostTemp, "temp", 0, "Boost setpoint (0 keeps the configured setpoint)")
}

func runBoost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account, err := resumedAccount(ctx)
	if err != nil {
		return err
	}

	radiator, home, err := findRadiator(ctx, account, args[0])
	if err != nil {
		return err
	}

	opts := clevertouch.ModeOptions{BoostTime: boostMinutes * 60}
	if boostTemp != 0 {
		opts.Temperature = &boostTemp
		opts.Unit = unit()
	}
	if err := radiator.ActivateMode(ctx, clevertouch.HeatModeBoost, opts); err != nil {
		return err
	}

	return confirm(ctx, home, radiator.ID(), func(fresh *clevertouch.Radiator) {
		fmt.Printf("%s: boosting at %s", fresh.Label(), formatTemp(fresh.Temperatures[clevertouch.SlotBoost]))
		if fresh.BoostRemaining > 0 {
			fmt.Printf(", %s remaining", (time.Duration(fresh.BoostRemaining) * time.Second).String())
		}
		fmt.Println()
	})
}

// findRadiator matches a radiator by id, in-home id or label across all of
// the account's homes.
func findRadiator(ctx context.Context, account *clevertouch.Account, name string) (*clevertouch.Radiator, *clevertouch.Home, error) {
	homes, err := account.GetHomes(ctx)
	if err != nil {
		return nil, nil, err
	}

	var matches []*clevertouch.Radiator
	var owner *clevertouch.Home
	for _, home := range homes {
		for _, device := range home.Devices {
			radiator, ok := device.(*clevertouch.Radiator)
			if !ok {
				continue
			}
			if radiator.ID() == name || radiator.LocalID() == name ||
				strings.EqualFold(radiator.Label(), name) {
				matches = append(matches, radiator)
				owner = home
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil, fmt.Errorf("no radiator matches %q", name)
	case 1:
		return matches[0], owner, nil
	default:
		return nil, nil, fmt.Errorf("%d radiators match %q, use the device id", len(matches), name)
	}
}

// confirm re-reads the home after a write and reports the confirmed state.
// Writes never update local snapshots, so this is the only way to show what
// the cloud accepted.
func confirm(ctx context.Context, home *clevertouch.Home, deviceID string, report func(*clevertouch.Radiator)) error {
	if err := home.Refresh(ctx); err != nil {
		return fmt.Errorf("write accepted but re-read failed: %w", err)
	}
	fresh, ok := home.Devices[deviceID].(*clevertouch.Radiator)
	if !ok {
		return fmt.Errorf("write accepted but device %s disappeared on re-read", deviceID)
	}
	report(fresh)
	return nil
}
