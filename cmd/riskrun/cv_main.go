package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/riskrun/internal/cv"
)

func runCV(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	samples, _ := cmd.Flags().GetInt("samples")
	method, _ := cmd.Flags().GetString("method")

	var splitter cv.Splitter
	switch method {
	case "cpcv":
		splitter = cv.NewCombinatorialPurged(cfg.CPCV)
	case "walkforward":
		splitter = cv.NewPurgedWalkForward(cfg.WalkForward)
	default:
		return fmt.Errorf("unknown method %q: want cpcv or walkforward", method)
	}

	folds, err := splitter.Split(samples)
	if err != nil {
		return err
	}

	fmt.Printf("%s over %d samples: %d folds\n\n", method, samples, len(folds))
	for i, fold := range folds {
		train := fold.TrainIndices
		test := fold.TestIndices
		fmt.Printf("fold %2d  train %5d samples [%d..%d]  test %5d samples [%d..%d]\n",
			i, len(train), train[0], train[len(train)-1],
			len(test), test[0], test[len(test)-1])
	}
	return nil
}
