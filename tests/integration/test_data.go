package integration

import (
	"fmt"
	"time"
)

// TestGAN generates a unique gift account number using a timestamp
func TestGAN(suffix string) string {
	return fmt.Sprintf("GAN-%d-%s", time.Now().UnixNano(), suffix)
}

// TestOrderID generates a unique order reference
func TestOrderID(suffix string) string {
	return fmt.Sprintf("order-%d-%s", time.Now().UnixNano(), suffix)
}

// ShareURL builds a share-URL payload for an order ID
func ShareURL(orderID string) string {
	return "https://cards.example.com/gift/" + orderID
}
