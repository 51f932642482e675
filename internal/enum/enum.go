package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// ── Group B: Wire enums (CHECK constrained in DB) ──

const (
	ChannelWeb      = "web"
	ChannelMobile   = "mobile"
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelPhone    = "phone"
	ChannelPOS      = "pos"
)

const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

const (
	ProductTypeSimple   = "simple"
	ProductTypeCombo    = "combo"
	ProductTypeModifier = "modifier"
)

// ── Group C: Roles and permissions (seeded rows, not compiled types) ──

const (
	RoleSuperAdmin         = "super-admin"
	RoleAdmin              = "admin"
	RoleRestaurantOwner    = "restaurant-owner"
	RoleRestaurantManager  = "restaurant-manager"
	RoleKitchenStaff       = "kitchen-staff"
	RoleCashier            = "cashier"
	RoleCallCenterOperator = "call-center-operator"
	RoleCourier            = "courier"
	RoleCustomer           = "customer"
)

const (
	PermManageRestaurants = "manage-restaurants"
	PermViewRestaurants   = "view-restaurants"
	PermManageMenu        = "manage-menu"
	PermViewMenu          = "view-menu"
	PermManageProducts    = "manage-products"
	PermViewProducts      = "view-products"
	PermManageOrders      = "manage-orders"
	PermViewOrders        = "view-orders"
	PermUpdateOrderStatus = "update-order-status"
	PermCancelOrders      = "cancel-orders"
	PermManageUsers       = "manage-users"
	PermViewUsers         = "view-users"
	PermViewAnalytics     = "view-analytics"
	PermViewReports       = "view-reports"
	PermManageSettings    = "manage-settings"
)

// Permissions lists every capability tag in seed order.
var Permissions = []string{
	PermManageRestaurants, PermViewRestaurants, PermManageMenu, PermViewMenu,
	PermManageProducts, PermViewProducts, PermManageOrders, PermViewOrders,
	PermUpdateOrderStatus, PermCancelOrders, PermManageUsers, PermViewUsers,
	PermViewAnalytics, PermViewReports, PermManageSettings,
}

// Channels lists every ordering surface in wire order.
var Channels = []string{ChannelWeb, ChannelMobile, ChannelTelegram, ChannelWhatsApp, ChannelPhone, ChannelPOS}

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []string{
	OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
	OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled,
}

// ActiveOrderStatuses are the statuses of orders still being fulfilled.
var ActiveOrderStatuses = []string{
	OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
	OrderStatusOutForDelivery,
}

func IsChannel(s string) bool { return contains(Channels, s) }

func IsOrderStatus(s string) bool { return contains(OrderStatuses, s) }

func IsAccountStatus(s string) bool {
	return s == StatusActive || s == StatusInactive || s == StatusSuspended
}

// CanBeCancelled reports whether an order in the given status may still be cancelled.
func CanBeCancelled(status string) bool {
	return status == OrderStatusPending || status == OrderStatusConfirmed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
