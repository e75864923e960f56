package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Error info codes carried in a Set Error Info PDU (MS-RDPBCGR 2.2.5.1.1).
const (
	ErrInfoNone                            uint32 = 0x00000000
	ErrInfoRPCInitiatedDisconnect           uint32 = 0x00000001
	ErrInfoRPCInitiatedLogoff               uint32 = 0x00000002
	ErrInfoIdleTimeout                      uint32 = 0x00000003
	ErrInfoLogonTimeout                     uint32 = 0x00000004
	ErrInfoDisconnectedByOtherConnection    uint32 = 0x00000005
	ErrInfoOutOfMemory                      uint32 = 0x00000006
	ErrInfoServerDeniedConnection           uint32 = 0x00000007
	ErrInfoServerInsufficientPrivileges     uint32 = 0x00000009
	ErrInfoServerFreshCredentialsRequired   uint32 = 0x0000000A
	ErrInfoRPCInitiatedDisconnectByUser     uint32 = 0x0000000B
	ErrInfoLogoffByUser                     uint32 = 0x0000000C
	ErrInfoCloseStackOnDriverNotReady       uint32 = 0x0000000F
	ErrInfoServerDWMCrash                   uint32 = 0x00000010
	ErrInfoCloseStackOnDriverFailure        uint32 = 0x00000011
	ErrInfoCloseStackOnDriverIfaceFailure   uint32 = 0x00000012
	ErrInfoServerWinlogonCrash              uint32 = 0x00000017
	ErrInfoServerCSRSSCrash                 uint32 = 0x00000018
	ErrInfoServerShutdown                   uint32 = 0x00000019
	ErrInfoServerReboot                     uint32 = 0x0000001A
	ErrInfoLicenseInternal                  uint32 = 0x00000100
	ErrInfoLicenseNoLicenseServer           uint32 = 0x00000101
	ErrInfoLicenseNoLicense                 uint32 = 0x00000102
	ErrInfoLicenseBadClientMsg              uint32 = 0x00000103
	ErrInfoLicenseHWIDDoesntMatchLicense    uint32 = 0x00000104
	ErrInfoLicenseBadClientLicense          uint32 = 0x00000105
	ErrInfoLicenseCantFinishProtocol        uint32 = 0x00000106
	ErrInfoLicenseClientEndedProtocol       uint32 = 0x00000107
	ErrInfoLicenseBadClientEncryption       uint32 = 0x00000108
	ErrInfoLicenseCantUpgradeLicense        uint32 = 0x00000109
	ErrInfoLicenseNoRemoteConnections       uint32 = 0x0000010A
	ErrInfoCBDestinationNotFound            uint32 = 0x00000400
	ErrInfoCBLoadingDestination             uint32 = 0x00000402
	ErrInfoCBRedirectingToDestination       uint32 = 0x00000404
	ErrInfoCBSessionOnlineVMWake            uint32 = 0x00000405
	ErrInfoCBSessionOnlineVMBoot            uint32 = 0x00000406
	ErrInfoCBSessionOnlineVMNoDNS           uint32 = 0x00000407
	ErrInfoCBDestinationPoolNotFree         uint32 = 0x00000408
	ErrInfoCBConnectionCancelled            uint32 = 0x00000409
	ErrInfoCBConnectionErrorInvalidSettings uint32 = 0x00000410
	ErrInfoCBSessionOnlineVMBootTimeout     uint32 = 0x00000411
	ErrInfoCBSessionOnlineVMSessmonFailed   uint32 = 0x00000412
	ErrInfoUnknownPDUType2                  uint32 = 0x000010C9
	ErrInfoUnknownPDUType                   uint32 = 0x000010CA
	ErrInfoDataPDUSequence                  uint32 = 0x000010CB
	ErrInfoControlPDUSequence                uint32 = 0x000010CD
	ErrInfoInvalidControlPDUAction           uint32 = 0x000010CE
	ErrInfoInvalidInputPDUType               uint32 = 0x000010CF
	ErrInfoInvalidInputPDUMouse              uint32 = 0x000010D0
	ErrInfoInvalidRefreshRectPDU             uint32 = 0x000010D1
	ErrInfoCreateUserDataFailed              uint32 = 0x000010D2
	ErrInfoConnectFailed                     uint32 = 0x000010D3
	ErrInfoConfirmActiveWrongShareID         uint32 = 0x000010D4
	ErrInfoConfirmActiveWrongOriginator      uint32 = 0x000010D5
	ErrInfoPersistentKeyPDUBadLength         uint32 = 0x000010DA
	ErrInfoPersistentKeyPDUIllegalFirst      uint32 = 0x000010DB
	ErrInfoPersistentKeyPDUTooManyTotalKeys  uint32 = 0x000010DC
	ErrInfoPersistentKeyPDUTooManyCacheKeys  uint32 = 0x000010DD
	ErrInfoInputPDUBadLength                 uint32 = 0x000010DE
	ErrInfoBitmapCacheErrorPDUBadLength      uint32 = 0x000010DF
	ErrInfoSecurityDataTooShort              uint32 = 0x000010E0
	ErrInfoVChannelDataTooShort              uint32 = 0x000010E1
	ErrInfoShareDataTooShort                 uint32 = 0x000010E2
	ErrInfoBadSupressOutputPDU               uint32 = 0x000010E3
	ErrInfoConfirmActivePDUTooShort          uint32 = 0x000010E5
	ErrInfoCapabilitySetTooSmall             uint32 = 0x000010E7
	ErrInfoCapabilitySetTooLarge             uint32 = 0x000010E8
	ErrInfoNoCursorCache                     uint32 = 0x000010E9
	ErrInfoBadCapabilities                   uint32 = 0x000010EA
	ErrInfoVirtualChannelDecompressionErr    uint32 = 0x000010EC
	ErrInfoInvalidVCCompressionType          uint32 = 0x000010ED
	ErrInfoInvalidChannelID                  uint32 = 0x000010EF
	ErrInfoVChannelsTooMany                  uint32 = 0x000010F0
	ErrInfoRemoteAppsNotEnabled              uint32 = 0x000010F3
	ErrInfoCacheCapNotSet                    uint32 = 0x000010F4
	ErrInfoBitmapCacheErrorPDUBadLength2     uint32 = 0x000010F5
	ErrInfoOffscrCacheErrorPDUBadLength      uint32 = 0x000010F6
	ErrInfoDngCacheErrorPDUBadLength         uint32 = 0x000010F7
	ErrInfoGdiplusPDUBadLength               uint32 = 0x000010F8
	ErrInfoSecurityDataTooShort2             uint32 = 0x00001111
	ErrInfoSecurityDataTooShort3             uint32 = 0x00001112
	ErrInfoSecurityDataTooShort4             uint32 = 0x00001113
	ErrInfoSecurityDataTooShort5             uint32 = 0x00001114
	ErrInfoSecurityDataTooShort6             uint32 = 0x00001115
	ErrInfoSecurityDataTooShort7             uint32 = 0x00001116
	ErrInfoSecurityDataTooShort8             uint32 = 0x00001117
	ErrInfoSecurityDataTooShort9             uint32 = 0x00001118
	ErrInfoSecurityDataTooShort10            uint32 = 0x00001119
	ErrInfoSecurityDataTooShort11            uint32 = 0x0000111A
	ErrInfoSecurityDataTooShort12            uint32 = 0x0000111B
	ErrInfoSecurityDataTooShort13            uint32 = 0x0000111C
	ErrInfoSecurityDataTooShort14            uint32 = 0x0000111D
	ErrInfoSecurityDataTooShort15            uint32 = 0x0000111E
	ErrInfoSecurityDataTooShort16            uint32 = 0x0000111F
	ErrInfoSecurityDataTooShort17            uint32 = 0x00001120
	ErrInfoSecurityDataTooShort18            uint32 = 0x00001121
	ErrInfoSecurityDataTooShort19            uint32 = 0x00001122
	ErrInfoSecurityDataTooShort20            uint32 = 0x00001123
	ErrInfoSecurityDataTooShort21            uint32 = 0x00001124
	ErrInfoSecurityDataTooShort22            uint32 = 0x00001125
	ErrInfoSecurityDataTooShort23            uint32 = 0x00001126
	ErrInfoBadMonitorData                    uint32 = 0x00001129
	ErrInfoVCDecompressedReassembleFailed    uint32 = 0x0000112A
	ErrInfoVCDataTooLong                     uint32 = 0x0000112B
	ErrInfoBadFrameAckData                   uint32 = 0x0000112C
	ErrInfoGraphicsModeNotSupported          uint32 = 0x0000112D
	ErrInfoGraphicsSubsystemResetFailed      uint32 = 0x0000112E
	ErrInfoGraphicsSubsystemFailed           uint32 = 0x0000112F
	ErrInfoTimezoneKeyNameLengthTooShort     uint32 = 0x00001130
	ErrInfoTimezoneKeyNameLengthTooLong      uint32 = 0x00001131
	ErrInfoDynamicDSTDisabledFieldMissing    uint32 = 0x00001132
	ErrInfoVCDecodingError                   uint32 = 0x00001133
	ErrInfoVirtualDesktopTooLarge            uint32 = 0x00001134
	ErrInfoMonitorGeometryValidationFailed   uint32 = 0x00001135
	ErrInfoInvalidMonitorCount               uint32 = 0x00001136
	ErrInfoUpdateSessionKeyFailed            uint32 = 0x00001191
	ErrInfoDecryptFailed                     uint32 = 0x00001192
	ErrInfoEncryptFailed                     uint32 = 0x00001193
	ErrInfoEncPkgMismatch                    uint32 = 0x00001194
	ErrInfoDecryptFailed2                    uint32 = 0x00001195
)

var errorInfoNames = map[uint32]string{
	ErrInfoNone:                             "ERRINFO_NONE",
	ErrInfoRPCInitiatedDisconnect:           "ERRINFO_RPC_INITIATED_DISCONNECT",
	ErrInfoRPCInitiatedLogoff:               "ERRINFO_RPC_INITIATED_LOGOFF",
	ErrInfoIdleTimeout:                      "ERRINFO_IDLE_TIMEOUT",
	ErrInfoLogonTimeout:                     "ERRINFO_LOGON_TIMEOUT",
	ErrInfoDisconnectedByOtherConnection:    "ERRINFO_DISCONNECTED_BY_OTHERCONNECTION",
	ErrInfoOutOfMemory:                      "ERRINFO_OUT_OF_MEMORY",
	ErrInfoServerDeniedConnection:           "ERRINFO_SERVER_DENIED_CONNECTION",
	ErrInfoServerInsufficientPrivileges:     "ERRINFO_SERVER_INSUFFICIENT_PRIVILEGES",
	ErrInfoServerFreshCredentialsRequired:   "ERRINFO_SERVER_FRESH_CREDENTIALS_REQUIRED",
	ErrInfoRPCInitiatedDisconnectByUser:     "ERRINFO_RPC_INITIATED_DISCONNECT_BYUSER",
	ErrInfoLogoffByUser:                     "ERRINFO_LOGOFF_BY_USER",
	ErrInfoCloseStackOnDriverNotReady:       "ERRINFO_CLOSE_STACK_ON_DRIVER_NOT_READY",
	ErrInfoServerDWMCrash:                   "ERRINFO_SERVER_DWM_CRASH",
	ErrInfoCloseStackOnDriverFailure:        "ERRINFO_CLOSE_STACK_ON_DRIVER_FAILURE",
	ErrInfoCloseStackOnDriverIfaceFailure:   "ERRINFO_CLOSE_STACK_ON_DRIVER_IFACE_FAILURE",
	ErrInfoServerWinlogonCrash:              "ERRINFO_SERVER_WINLOGON_CRASH",
	ErrInfoServerCSRSSCrash:                 "ERRINFO_SERVER_CSRSS_CRASH",
	ErrInfoServerShutdown:                   "ERRINFO_SERVER_SHUTDOWN",
	ErrInfoServerReboot:                     "ERRINFO_SERVER_REBOOT",
	ErrInfoLicenseInternal:                  "ERRINFO_LICENSE_INTERNAL",
	ErrInfoLicenseNoLicenseServer:           "ERRINFO_LICENSE_NO_LICENSE_SERVER",
	ErrInfoLicenseNoLicense:                 "ERRINFO_LICENSE_NO_LICENSE",
	ErrInfoLicenseBadClientMsg:              "ERRINFO_LICENSE_BAD_CLIENT_MSG",
	ErrInfoLicenseHWIDDoesntMatchLicense:    "ERRINFO_LICENSE_HWID_DOESNT_MATCH_LICENSE",
	ErrInfoLicenseBadClientLicense:          "ERRINFO_LICENSE_BAD_CLIENT_LICENSE",
	ErrInfoLicenseCantFinishProtocol:        "ERRINFO_LICENSE_CANT_FINISH_PROTOCOL",
	ErrInfoLicenseClientEndedProtocol:       "ERRINFO_LICENSE_CLIENT_ENDED_PROTOCOL",
	ErrInfoLicenseBadClientEncryption:       "ERRINFO_LICENSE_BAD_CLIENT_ENCRYPTION",
	ErrInfoLicenseCantUpgradeLicense:        "ERRINFO_LICENSE_CANT_UPGRADE_LICENSE",
	ErrInfoLicenseNoRemoteConnections:       "ERRINFO_LICENSE_NO_REMOTE_CONNECTIONS",
	ErrInfoCBDestinationNotFound:            "ERRINFO_CB_DESTINATION_NOT_FOUND",
	ErrInfoCBLoadingDestination:             "ERRINFO_CB_LOADING_DESTINATION",
	ErrInfoCBRedirectingToDestination:       "ERRINFO_CB_REDIRECTING_TO_DESTINATION",
	ErrInfoCBSessionOnlineVMWake:            "ERRINFO_CB_SESSION_ONLINE_VM_WAKE",
	ErrInfoCBSessionOnlineVMBoot:            "ERRINFO_CB_SESSION_ONLINE_VM_BOOT",
	ErrInfoCBSessionOnlineVMNoDNS:           "ERRINFO_CB_SESSION_ONLINE_VM_NO_DNS",
	ErrInfoCBDestinationPoolNotFree:         "ERRINFO_CB_DESTINATION_POOL_NOT_FREE",
	ErrInfoCBConnectionCancelled:            "ERRINFO_CB_CONNECTION_CANCELLED",
	ErrInfoCBConnectionErrorInvalidSettings: "ERRINFO_CB_CONNECTION_ERROR_INVALID_SETTINGS",
	ErrInfoCBSessionOnlineVMBootTimeout:     "ERRINFO_CB_SESSION_ONLINE_VM_BOOT_TIMEOUT",
	ErrInfoCBSessionOnlineVMSessmonFailed:   "ERRINFO_CB_SESSION_ONLINE_VM_SESSMON_FAILED",
	ErrInfoUnknownPDUType2:                  "ERRINFO_UNKNOWNPDUTYPE2",
	ErrInfoUnknownPDUType:                   "ERRINFO_UNKNOWNPDUTYPE",
	ErrInfoDataPDUSequence:                  "ERRINFO_DATAPDUSEQUENCE",
	ErrInfoControlPDUSequence:               "ERRINFO_CONTROLPDUSEQUENCE",
	ErrInfoInvalidControlPDUAction:          "ERRINFO_INVALIDCONTROLPDUACTION",
	ErrInfoInvalidInputPDUType:              "ERRINFO_INVALIDINPUTPDUTYPE",
	ErrInfoInvalidInputPDUMouse:             "ERRINFO_INVALIDINPUTPDUMOUSE",
	ErrInfoInvalidRefreshRectPDU:            "ERRINFO_INVALIDREFRESHRECTPDU",
	ErrInfoCreateUserDataFailed:             "ERRINFO_CREATEUSERDATAFAILED",
	ErrInfoConnectFailed:                    "ERRINFO_CONNECTFAILED",
	ErrInfoConfirmActiveWrongShareID:        "ERRINFO_CONFIRMACTIVEWRONGSHAREID",
	ErrInfoConfirmActiveWrongOriginator:     "ERRINFO_CONFIRMACTIVEWRONGORIGINATOR",
	ErrInfoPersistentKeyPDUBadLength:        "ERRINFO_PERSISTENTKEYPDUBADLENGTH",
	ErrInfoPersistentKeyPDUIllegalFirst:     "ERRINFO_PERSISTENTKEYPDUILLEGALFIRST",
	ErrInfoPersistentKeyPDUTooManyTotalKeys: "ERRINFO_PERSISTENTKEYPDUTOOMANYTOTALKEYS",
	ErrInfoPersistentKeyPDUTooManyCacheKeys: "ERRINFO_PERSISTENTKEYPDUTOOMANYCACHEKEYS",
	ErrInfoInputPDUBadLength:                "ERRINFO_INPUTPDUBADLENGTH",
	ErrInfoBitmapCacheErrorPDUBadLength:     "ERRINFO_BITMAPCACHEERRORPDUBADLENGTH",
	ErrInfoSecurityDataTooShort:             "ERRINFO_SECURITYDATATOOSHORT",
	ErrInfoVChannelDataTooShort:             "ERRINFO_VCHANNELDATATOOSHORT",
	ErrInfoShareDataTooShort:                "ERRINFO_SHAREDATATOOSHORT",
	ErrInfoBadSupressOutputPDU:              "ERRINFO_BADSUPRESSOUTPUTPDU",
	ErrInfoConfirmActivePDUTooShort:         "ERRINFO_CONFIRMACTIVEPDUTOOSHORT",
	ErrInfoCapabilitySetTooSmall:            "ERRINFO_CAPABILITYSETTOOSMALL",
	ErrInfoCapabilitySetTooLarge:            "ERRINFO_CAPABILITYSETTOOLARGE",
	ErrInfoNoCursorCache:                    "ERRINFO_NOCURSORCACHE",
	ErrInfoBadCapabilities:                  "ERRINFO_BADCAPABILITIES",
	ErrInfoVirtualChannelDecompressionErr:   "ERRINFO_VIRTUALCHANNELDECOMPRESSIONERR",
	ErrInfoInvalidVCCompressionType:         "ERRINFO_INVALIDVCCOMPRESSIONTYPE",
	ErrInfoInvalidChannelID:                 "ERRINFO_INVALIDCHANNELID",
	ErrInfoVChannelsTooMany:                 "ERRINFO_VCHANNELSTOOMANY",
	ErrInfoRemoteAppsNotEnabled:             "ERRINFO_REMOTEAPPSNOTENABLED",
	ErrInfoCacheCapNotSet:                   "ERRINFO_CACHECAPNOTSET",
	ErrInfoBitmapCacheErrorPDUBadLength2:    "ERRINFO_BITMAPCACHEERRORPDUBADLENGTH2",
	ErrInfoOffscrCacheErrorPDUBadLength:     "ERRINFO_OFFSCRCACHEERRORPDUBADLENGTH",
	ErrInfoDngCacheErrorPDUBadLength:        "ERRINFO_DNGCACHEERRORPDUBADLENGTH",
	ErrInfoGdiplusPDUBadLength:              "ERRINFO_GDIPLUSPDUBADLENGTH",
	ErrInfoSecurityDataTooShort2:            "ERRINFO_SECURITYDATATOOSHORT2",
	ErrInfoSecurityDataTooShort3:            "ERRINFO_SECURITYDATATOOSHORT3",
	ErrInfoSecurityDataTooShort4:            "ERRINFO_SECURITYDATATOOSHORT4",
	ErrInfoSecurityDataTooShort5:            "ERRINFO_SECURITYDATATOOSHORT5",
	ErrInfoSecurityDataTooShort6:            "ERRINFO_SECURITYDATATOOSHORT6",
	ErrInfoSecurityDataTooShort7:            "ERRINFO_SECURITYDATATOOSHORT7",
	ErrInfoSecurityDataTooShort8:            "ERRINFO_SECURITYDATATOOSHORT8",
	ErrInfoSecurityDataTooShort9:            "ERRINFO_SECURITYDATATOOSHORT9",
	ErrInfoSecurityDataTooShort10:           "ERRINFO_SECURITYDATATOOSHORT10",
	ErrInfoSecurityDataTooShort11:           "ERRINFO_SECURITYDATATOOSHORT11",
	ErrInfoSecurityDataTooShort12:           "ERRINFO_SECURITYDATATOOSHORT12",
	ErrInfoSecurityDataTooShort13:           "ERRINFO_SECURITYDATATOOSHORT13",
	ErrInfoSecurityDataTooShort14:           "ERRINFO_SECURITYDATATOOSHORT14",
	ErrInfoSecurityDataTooShort15:           "ERRINFO_SECURITYDATATOOSHORT15",
	ErrInfoSecurityDataTooShort16:           "ERRINFO_SECURITYDATATOOSHORT16",
	ErrInfoSecurityDataTooShort17:           "ERRINFO_SECURITYDATATOOSHORT17",
	ErrInfoSecurityDataTooShort18:           "ERRINFO_SECURITYDATATOOSHORT18",
	ErrInfoSecurityDataTooShort19:           "ERRINFO_SECURITYDATATOOSHORT19",
	ErrInfoSecurityDataTooShort20:           "ERRINFO_SECURITYDATATOOSHORT20",
	ErrInfoSecurityDataTooShort21:           "ERRINFO_SECURITYDATATOOSHORT21",
	ErrInfoSecurityDataTooShort22:           "ERRINFO_SECURITYDATATOOSHORT22",
	ErrInfoSecurityDataTooShort23:           "ERRINFO_SECURITYDATATOOSHORT23",
	ErrInfoBadMonitorData:                   "ERRINFO_BADMONITORDATA",
	ErrInfoVCDecompressedReassembleFailed:   "ERRINFO_VCDECOMPRESSEDREASSEMBLEFAILED",
	ErrInfoVCDataTooLong:                    "ERRINFO_VCDATATOOLONG",
	ErrInfoBadFrameAckData:                  "ERRINFO_BAD_FRAME_ACK_DATA",
	ErrInfoGraphicsModeNotSupported:         "ERRINFO_GRAPHICSMODENOTSUPPORTED",
	ErrInfoGraphicsSubsystemResetFailed:     "ERRINFO_GRAPHICSSUBSYSTEMRESETFAILED",
	ErrInfoGraphicsSubsystemFailed:          "ERRINFO_GRAPHICSSUBSYSTEMFAILED",
	ErrInfoTimezoneKeyNameLengthTooShort:    "ERRINFO_TIMEZONEKEYNAMELENGTHTOOSHORT",
	ErrInfoTimezoneKeyNameLengthTooLong:     "ERRINFO_TIMEZONEKEYNAMELENGTHTOOLONG",
	ErrInfoDynamicDSTDisabledFieldMissing:   "ERRINFO_DYNAMICDSTDISABLEDFIELDMISSING",
	ErrInfoVCDecodingError:                  "ERRINFO_VCDECODINGERROR",
	ErrInfoVirtualDesktopTooLarge:           "ERRINFO_VIRTUALDESKTOPTOOLARGE",
	ErrInfoMonitorGeometryValidationFailed:  "ERRINFO_MONITORGEOMETRYVALIDATIONFAILED",
	ErrInfoInvalidMonitorCount:              "ERRINFO_INVALIDMONITORCOUNT",
	ErrInfoUpdateSessionKeyFailed:           "ERRINFO_UPDATESESSIONKEYFAILED",
	ErrInfoDecryptFailed:                    "ERRINFO_DECRYPTFAILED",
	ErrInfoEncryptFailed:                    "ERRINFO_ENCRYPTFAILED",
	ErrInfoEncPkgMismatch:                   "ERRINFO_ENCPKGMISMATCH",
	ErrInfoDecryptFailed2:                   "ERRINFO_DECRYPTFAILED2",
}

// ErrorInfoPDUData represents the TS_SET_ERROR_INFO_PDU errorInfo field
// (MS-RDPBCGR 2.2.5.1.1), sent by the server just before a disconnect to
// explain why.
type ErrorInfoPDUData struct {
	ErrorInfo uint32
}

func (pdu *ErrorInfoPDUData) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &pdu.ErrorInfo)
}

// String returns the MS-RDPBCGR symbolic name for the error code, or a
// fallback describing it as an unknown code.
func (pdu ErrorInfoPDUData) String() string {
	if name, ok := errorInfoNames[pdu.ErrorInfo]; ok {
		return name
	}
	return fmt.Sprintf("unknown code 0x%08X", pdu.ErrorInfo)
}
