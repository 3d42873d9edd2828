package list

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"errortracker/src/database"
	"errortracker/src/model"
	"errortracker/src/repository"
)

type aggregateSearcher interface {
	Search(ctx context.Context, options repository.ErrorAggregateSearchOptions) ([]model.ErrorAggregate, error)
}

type List struct {
	Log       *logrus.Entry
	Out       io.Writer
	Limit     int
	Path      string
	Exception string

	repo aggregateSearcher
}

func (l *List) Start() error {
	if l.repo == nil {
		if err := database.InitMainDB(); err != nil {
			l.Log.WithError(err).Error("Failed to connect to database")
			return err
		}
		if err := database.InitReadOnlyDB(); err != nil {
			l.Log.WithError(err).Error("Failed to connect to read-only database")
			return err
		}
		l.repo = repository.NewReadOnlyErrorAggregateRepository()
	}

	aggregates, err := l.repo.Search(context.Background(), repository.ErrorAggregateSearchOptions{
		Path:          l.Path,
		ExceptionName: l.Exception,
		Limit:         l.Limit,
	})
	if err != nil {
		return fmt.Errorf("search error aggregates: %w", err)
	}

	return write(l.Out, aggregates)
}

func write(out io.Writer, aggregates []model.ErrorAggregate) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCOUNT\tLAST SEEN\tROUTE\tEXCEPTION\tTICKET")
	for _, a := range aggregates {
		route := "-"
		if a.Path != "" {
			route = a.Method + " " + a.Host + a.Path
		}
		ticket := a.TicketKey
		if ticket == "" {
			ticket = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			a.ID, a.Count, a.LastSeen.UTC().Format(time.RFC3339), route, a.ExceptionName, ticket)
	}
	return tw.Flush()
}
