package constants

const (
	ManageWallet   = "manage_wallet"
	PlaceBids      = "place_bids"
	BuyArtworks    = "buy_artworks"
	ListArtworks   = "list_artworks"
	ManageAuctions = "manage_auctions"
	CloseAuctions  = "close_auctions"
)
