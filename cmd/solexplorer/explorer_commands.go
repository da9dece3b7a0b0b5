package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/brojonat/solexplorer/client"
	"github.com/brojonat/solexplorer/service/explorer"
	"github.com/urfave/cli/v2"
)

func pagingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "page",
			Aliases: []string{"p"},
			Usage:   "Page number, starting at 1 (server default when unset)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"l"},
			Usage:   "Items per page (server default when unset)",
		},
	}
}

func blocksCommands() *cli.Command {
	return &cli.Command{
		Name:  "blocks",
		Usage: "Browse blocks",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "List recent blocks, newest first",
				Aliases: []string{"ls"},
				Flags:   pagingFlags(),
				Action: func(c *cli.Context) error {
					page, err := newClient(c).ListBlocks(c.Context, c.Int("page"), c.Int("limit"))
					if err != nil {
						return fmt.Errorf("failed to list blocks: %w", err)
					}
					return render(c, page, func(w io.Writer) { printBlocks(w, page) })
				},
			},
			{
				Name:      "get",
				Usage:     "Show a block by slot",
				ArgsUsage: "<slot>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: slot")
					}
					slot, err := strconv.ParseUint(c.Args().First(), 10, 64)
					if err != nil {
						return fmt.Errorf("invalid slot %q: %w", c.Args().First(), err)
					}

					block, err := newClient(c).GetBlock(c.Context, slot)
					if err != nil {
						return lookupError("block", err)
					}
					return render(c, block, func(w io.Writer) { printBlock(w, block) })
				},
			},
		},
	}
}

func transactionsCommands() *cli.Command {
	return &cli.Command{
		Name:    "tx",
		Usage:   "Browse transactions",
		Aliases: []string{"transactions"},
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Usage:   "List recent transactions",
				Aliases: []string{"ls"},
				Flags:   pagingFlags(),
				Action: func(c *cli.Context) error {
					page, err := newClient(c).ListTransactions(c.Context, c.Int("page"), c.Int("limit"))
					if err != nil {
						return fmt.Errorf("failed to list transactions: %w", err)
					}
					return render(c, page, func(w io.Writer) { printTransactions(w, page) })
				},
			},
			{
				Name:      "get",
				Usage:     "Show a transaction by signature",
				ArgsUsage: "<signature>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: signature")
					}

					tx, err := newClient(c).GetTransaction(c.Context, c.Args().First())
					if err != nil {
						return lookupError("transaction", err)
					}
					return render(c, tx, func(w io.Writer) { printTransaction(w, tx) })
				},
			},
		},
	}
}

func addressCommands() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Inspect accounts",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show balance, type and token holdings of an address",
				ArgsUsage: "<address>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: address")
					}

					details, err := newClient(c).GetAddress(c.Context, c.Args().First())
					if err != nil {
						return lookupError("address", err)
					}
					return render(c, details, func(w io.Writer) { printAddress(w, details) })
				},
			},
			{
				Name:      "transactions",
				Usage:     "List transactions of an address",
				Aliases:   []string{"txs"},
				ArgsUsage: "<address>",
				Flags:     pagingFlags(),
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: address")
					}

					page, err := newClient(c).ListAddressTransactions(c.Context, c.Args().First(), c.Int("page"), c.Int("limit"))
					if err != nil {
						return fmt.Errorf("failed to list address transactions: %w", err)
					}
					return render(c, page, func(w io.Writer) { printTransactions(w, page) })
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Show supply of a token mint",
		ArgsUsage: "<mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: mint")
			}

			token, err := newClient(c).GetToken(c.Context, c.Args().First())
			if err != nil {
				return lookupError("token", err)
			}
			return render(c, token, func(w io.Writer) {
				fmt.Fprintf(w, "Mint:       %s\n", token.Mint)
				fmt.Fprintf(w, "Decimals:   %d\n", token.Decimals)
				fmt.Fprintf(w, "Supply:     %s\n", token.Supply)
				fmt.Fprintf(w, "UI Supply:  %f\n", token.UISupply)
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show network statistics",
		Action: func(c *cli.Context) error {
			stats, err := newClient(c).NetworkStats(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get network stats: %w", err)
			}
			return render(c, stats, func(w io.Writer) {
				fmt.Fprintf(w, "Slot:               %d\n", stats.Slot)
				fmt.Fprintf(w, "Block Height:       %d\n", stats.BlockHeight)
				fmt.Fprintf(w, "TPS:                %.2f\n", stats.TPS)
				fmt.Fprintf(w, "Total Transactions: %d\n", stats.TotalTransactions)
				fmt.Fprintf(w, "Epoch:              %d (%.2f%%)\n", stats.Epoch, stats.EpochProgress)
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find a block, transaction or address",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: query")
			}

			result, err := newClient(c).Search(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return render(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "Type:   %s\n", result.Type)
				if !result.Found() {
					fmt.Fprintln(w, "Result: not found")
					return
				}
				fmt.Fprintf(w, "Result: %s\n", result.Result)
			})
		},
	}
}

func lookupError(kind string, err error) error {
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("%s not found", kind)
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}

func printBlocks(w io.Writer, page *explorer.Page[explorer.Block]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tTIME\tTXS\tLEADER")
	for _, b := range page.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", b.Slot, formatTimestamp(b.Timestamp), b.TransactionsCount, b.Leader)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nPage %d, %d per page, head slot %d\n", page.Page, page.Limit, page.Total)
}

func printBlock(w io.Writer, b *explorer.Block) {
	fmt.Fprintf(w, "Slot:               %d\n", b.Slot)
	fmt.Fprintf(w, "Time:               %s\n", formatTimestamp(b.Timestamp))
	fmt.Fprintf(w, "Leader:             %s\n", b.Leader)
	fmt.Fprintf(w, "Transactions:       %d\n", b.TransactionsCount)
	fmt.Fprintf(w, "Blockhash:          %s\n", b.Blockhash)
	fmt.Fprintf(w, "Parent Slot:        %d\n", b.ParentSlot)
	fmt.Fprintf(w, "Previous Blockhash: %s\n", b.PreviousBlockhash)
}

func printTransactions(w io.Writer, page *explorer.Page[explorer.Transaction]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNATURE\tSLOT\tSTATUS\tFEE")
	for _, tx := range page.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", tx.Signature, tx.Slot, tx.Status, tx.Fee)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nPage %d, %d per page, total %d\n", page.Page, page.Limit, page.Total)
}

func printTransaction(w io.Writer, tx *explorer.Transaction) {
	fmt.Fprintf(w, "Signature:  %s\n", tx.Signature)
	fmt.Fprintf(w, "Slot:       %d\n", tx.Slot)
	fmt.Fprintf(w, "Time:       %s\n", formatTimestamp(tx.Timestamp))
	fmt.Fprintf(w, "Status:     %s\n", tx.Status)
	fmt.Fprintf(w, "Fee:        %d lamports\n", tx.Fee)
	fmt.Fprintf(w, "Signer:     %s\n", tx.Signer)
}

func printAddress(w io.Writer, a *explorer.AddressDetails) {
	fmt.Fprintf(w, "Address:      %s\n", a.Address)
	fmt.Fprintf(w, "Type:         %s\n", a.Type)
	fmt.Fprintf(w, "Balance:      %.9f SOL (%d lamports)\n", a.Balance, a.Lamports)
	fmt.Fprintf(w, "Transactions: %d\n", a.TransactionCount)
	if len(a.Tokens) == 0 {
		return
	}

	fmt.Fprintln(w, "\nTokens:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MINT\tAMOUNT\tACCOUNT")
	for _, t := range a.Tokens {
		fmt.Fprintf(tw, "%s\t%g\t%s\n", t.Mint, t.UIAmount, t.Account)
	}
	tw.Flush()
}
