package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/DmitriyMgar/telegram-gpt-bot/internal/models"
	"github.com/DmitriyMgar/telegram-gpt-bot/internal/storage"
	"github.com/DmitriyMgar/telegram-gpt-bot/pkg/config"
)

func main() {
	date := flag.String("date", "", "show usage for one day (YYYY-MM-DD) instead of all-time totals")
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	store, err := storage.NewPostgresStorage(storage.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to storage", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()

	var usage []models.UserUsage
	var title string
	if *date != "" {
		day, err := time.Parse("2006-01-02", *date)
		if err != nil {
			logger.Fatal("Invalid -date, expected YYYY-MM-DD", zap.String("date", *date))
		}
		usage, err = store.UsageByDate(ctx, day)
		if err != nil {
			logger.Fatal("Failed to query usage", zap.Error(err))
		}
		title = "Token usage for " + *date
	} else {
		usage, err = store.UserTotals(ctx)
		if err != nil {
			logger.Fatal("Failed to query usage", zap.Error(err))
		}
		title = "Token usage, all time"
	}

	printReport(title, usage)
}

func printReport(title string, usage []models.UserUsage) {
	fmt.Println(title)
	if len(usage) == 0 {
		fmt.Println("no records")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tUSERNAME\tREQUESTS\tTOKENS")

	var totalTokens, totalRequests int64
	for _, u := range usage {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", u.UserID, u.Username, u.Requests, u.TotalTokens)
		totalTokens += u.TotalTokens
		totalRequests += u.Requests
	}
	fmt.Fprintf(w, "\t\t%d\t%d\n", totalRequests, totalTokens)
	w.Flush()
}
