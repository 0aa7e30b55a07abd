package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/prompt"
)

const (
	browseLimit   = 5
	addItemsLimit = 3
	demoPassword  = "senha123"
)

func runHealth(ctx context.Context, inv *invocation) error {
	body, err := inv.client.Health(ctx)
	if err != nil {
		return err
	}
	inv.printf("Health check: %s\n", compactJSON(body))
	return nil
}

func runRegistry(ctx context.Context, inv *invocation) error {
	body, err := inv.client.Registry(ctx)
	if err != nil {
		return err
	}
	inv.printf("Service registry: %s\n", compactJSON(body))
	return nil
}

func runRegister(ctx context.Context, inv *invocation) error {
	req := api.RegisterRequest{
		Email:     fmt.Sprintf("usuario%d@exemplo.com", inv.intN(1000)),
		Username:  fmt.Sprintf("user%d", inv.intN(1000)),
		Password:  demoPassword,
		FirstName: "João",
		LastName:  "Silva",
		Preferences: &api.Preferences{
			DefaultStore: "Mercado Central",
			Currency:     "BRL",
		},
	}
	auth, err := inv.client.Register(ctx, req)
	if err != nil {
		return err
	}
	if auth.Token == "" {
		return ErrMissingToken
	}
	inv.sess.signIn(auth)
	inv.printf("User registered: %s\n", describeUser(auth.User, req.Username))
	return nil
}

func runLogin(ctx context.Context, inv *invocation) error {
	auth, err := inv.client.Login(ctx, inv.Credentials)
	if err != nil {
		return err
	}
	if auth.Token == "" {
		return ErrMissingToken
	}
	inv.sess.signIn(auth)
	inv.printf("Logged in: %s\n", describeUser(auth.User, inv.Credentials.Identifier))
	return nil
}

func runBrowse(ctx context.Context, inv *invocation) error {
	categories, err := inv.client.Categories(ctx)
	if err != nil {
		return err
	}
	labels := make([]string, len(categories))
	for i, c := range categories {
		labels[i] = c.Label()
	}
	inv.printf("Available categories: %s\n", strings.Join(labels, ", "))
	if len(categories) == 0 {
		inv.printf("No categories available to browse.\n")
		return ErrNoCategories
	}

	var category api.Category
	if inv.Interactive && inv.Prompt != nil {
		category, err = chooseCategory(inv, categories)
		if err != nil {
			return err
		}
	} else {
		category = categories[0]
		inv.printf("Using default category: %s\n", category.Label())
	}

	items, err := inv.client.Items(ctx, api.ItemQuery{Category: category.Value(), Limit: browseLimit})
	if err != nil {
		return err
	}
	inv.printf("Items in category %s: %d\n", category.Value(), len(items))
	if len(items) > 0 {
		inv.printf("Item details:\n")
		for i, it := range items {
			inv.printf("%s\n", formatItem(i+1, it))
		}
	}
	return nil
}

// chooseCategory asks until it gets a valid number or a cancel. The reader is
// released before returning.
func chooseCategory(inv *invocation, categories []api.Category) (api.Category, error) {
	lr, err := inv.Prompt()
	if err != nil {
		return api.Category{}, fmt.Errorf("open prompt: %w", err)
	}
	defer lr.Close()

	inv.printf("\nChoose a category:\n")
	for i, c := range categories {
		inv.printf("%d. %s\n", i+1, c.Label())
	}
	for {
		line, err := lr.ReadLine("\nEnter the category number (or C to cancel): ")
		if errors.Is(err, io.EOF) {
			inv.printf("\nBrowsing cancelled: no more input.\n")
			return api.Category{}, ErrCancelled
		}
		if err != nil {
			return api.Category{}, fmt.Errorf("read category: %w", err)
		}
		answer := strings.TrimSpace(line)
		switch {
		case answer == "":
			inv.printf("Empty input, try again.\n")
			continue
		case strings.EqualFold(answer, "c"):
			inv.printf("Browsing cancelled by user.\n")
			return api.Category{}, ErrCancelled
		}
		idx, ok := prompt.ParseChoice(answer, len(categories))
		if !ok {
			inv.printf("Invalid option, enter the number shown next to a category.\n")
			continue
		}
		return categories[idx-1], nil
	}
}

func runSearch(ctx context.Context, inv *invocation) error {
	items, err := inv.client.SearchItems(ctx, inv.SearchTerm)
	if err != nil {
		return err
	}
	inv.printf("Results for %q: %d\n", inv.SearchTerm, len(items))
	return nil
}

func runCreateList(ctx context.Context, inv *invocation) error {
	list, err := inv.client.CreateList(ctx, inv.sess.Token, api.NewList{
		Name:        "Minha Lista de Compras",
		Description: "Lista de compras da semana",
	})
	if err != nil {
		return err
	}
	if list.ID == "" {
		return ErrMissingListID
	}
	inv.sess.ListID = list.ID
	inv.printf("List created: %s (id: %s)\n", list.Name, list.ID)
	return nil
}

// runAddItems is best effort: items added before a failure stay on the list.
func runAddItems(ctx context.Context, inv *invocation) error {
	items, err := inv.client.Items(ctx, api.ItemQuery{Limit: addItemsLimit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		inv.printf("No items available to add.\n")
		return nil
	}
	for _, it := range items {
		add := api.AddItem{
			ItemID:   it.ID,
			Quantity: inv.intN(3) + 1,
			Notes:    "Notes for " + it.Name,
		}
		if _, err := inv.client.AddListItem(ctx, inv.sess.Token, inv.sess.ListID, add); err != nil {
			return fmt.Errorf("add %s: %w", it.Name, err)
		}
		inv.printf("Item added: %s (quantity %d)\n", it.Name, add.Quantity)
	}
	return nil
}

func runViewList(ctx context.Context, inv *invocation) error {
	list, err := inv.client.GetList(ctx, inv.sess.Token, inv.sess.ListID)
	if err != nil {
		return err
	}
	var total *float64
	if list.Summary != nil {
		total = list.Summary.EstimatedTotal
	}
	inv.printf("List details:\n")
	inv.printf("- Name: %s\n", list.Name)
	inv.printf("- Items: %d\n", len(list.Items))
	inv.printf("- Estimated total: %s\n", money(total))
	return nil
}

func runDashboard(ctx context.Context, inv *invocation) error {
	dash, err := inv.client.Dashboard(ctx, inv.sess.Token)
	if err != nil {
		return err
	}
	stats := dash.Statistics
	if stats == nil {
		stats = &api.Statistics{}
	}
	inv.printf("Dashboard:\n")
	inv.printf("- User: %s\n", fullName(dash.User))
	inv.printf("- Total lists: %s\n", count(stats.TotalLists))
	inv.printf("- Active lists: %s\n", count(stats.ActiveLists))
	inv.printf("- Estimated total: %s\n", money(stats.TotalEstimated))
	return nil
}

func runGlobalSearch(ctx context.Context, inv *invocation) error {
	found, err := inv.client.Search(ctx, inv.sess.Token, inv.SearchTerm)
	if err != nil {
		return err
	}
	inv.printf("Global search for %q:\n", inv.SearchTerm)
	inv.printf("- Items found: %d\n", len(found.Items))
	if found.Lists != nil {
		inv.printf("- Lists found: %d\n", len(found.Lists))
	}
	return nil
}

func formatItem(n int, it api.Item) string {
	name := it.Name
	if name == "" {
		name = "(unnamed)"
	}
	id := it.ID
	if id == "" {
		id = "-"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s (id: %s)", n, name, id)
	if it.Brand != "" {
		b.WriteString(" | Brand: " + it.Brand)
	}
	if it.Unit != "" {
		b.WriteString(" | Unit: " + it.Unit)
	}
	if it.AveragePrice != nil {
		b.WriteString(" | Avg price: R$ " + strconv.FormatFloat(*it.AveragePrice, 'f', -1, 64))
	}
	if it.Description != "" {
		b.WriteString(" | " + it.Description)
	}
	return b.String()
}

func describeUser(u *api.User, fallback string) string {
	if u == nil {
		return fallback
	}
	name := u.Username
	if name == "" {
		name = fallback
	}
	if u.Email != "" && u.Email != name {
		return fmt.Sprintf("%s <%s>", name, u.Email)
	}
	return name
}

func fullName(u *api.User) string {
	if u == nil {
		return "n/a"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func money(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return "R$ " + strconv.FormatFloat(*v, 'f', 2, 64)
}

func count(v *int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.Itoa(*v)
}

func compactJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
