package utils

import "fmt"

func AnalysisResultKey(walletAddress string) string {
	return fmt.Sprintf("paperhands:result:%s", walletAddress)
}

func JobProgressKey(jobID string) string {
	return fmt.Sprintf("paperhands:progress:%s", jobID)
}

func TokenMarketKey(mint string) string {
	return fmt.Sprintf("paperhands:market:%s", mint)
}
